/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

// Package sanitize merges parameter values into SQL text client-side.
//
// Server-side binding cannot express every statement: DDL has no placeholders and the
// extended protocol takes exactly one command per exchange. For those cases the caller
// opts into client-side binding and this package quotes each value and substitutes it
// into the $n placeholder before transmission. Only literal values are substituted;
// identifiers need the explicit Ident helper.
package sanitize

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Literal quotes s as a PostgreSQL string literal. Backslashes force the E'' form so
// standard_conforming_strings settings cannot change the meaning.
func Literal(s string) string {
	quoted := strings.Replace(s, "'", "''", -1)
	if strings.ContainsRune(s, '\\') {
		return "E'" + strings.Replace(quoted, `\`, `\\`, -1) + "'"
	}
	return "'" + quoted + "'"
}

// Ident quotes s as a PostgreSQL identifier (table, column, database name).
func Ident(s string) string {
	return `"` + strings.Replace(s, `"`, `""`, -1) + `"`
}

// Value renders a Go value as a self-contained SQL literal.
func Value(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		return Literal(v), nil
	case []byte:
		return `'\x` + hex.EncodeToString(v) + "'", nil
	case time.Time:
		return Literal(v.UTC().Format("2006-01-02 15:04:05.999999+00")), nil
	case fmt.Stringer:
		return Literal(v.String()), nil
	}
	return "", fmt.Errorf("no literal form for %T", v)
}

// Interpolate substitutes $1..$n placeholders in sql with quoted literal renderings of
// args. Placeholders inside string literals, quoted identifiers, dollar-quoted strings
// and comments are left alone.
func Interpolate(sql string, args ...interface{}) (string, error) {
	var sb strings.Builder
	sb.Grow(len(sql) + 16*len(args))

	used := make([]bool, len(args))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch c {
		case '\'':
			i = copySpan(&sb, sql, i, scanSingleQuote)
		case '"':
			i = copySpan(&sb, sql, i, scanDoubleQuote)
		case '$':
			if j, n, ok := scanPlaceholder(sql, i); ok {
				if n < 1 || n > len(args) {
					return "", fmt.Errorf("placeholder $%d out of range, have %d args", n, len(args))
				}
				lit, err := Value(args[n-1])
				if err != nil {
					return "", err
				}
				sb.WriteString(lit)
				used[n-1] = true
				i = j
				break
			}
			if j, ok := scanDollarQuote(sql, i); ok {
				sb.WriteString(sql[i:j])
				i = j
				break
			}
			sb.WriteByte(c)
			i++
		case '-':
			if i+1 < len(sql) && sql[i+1] == '-' {
				i = copySpan(&sb, sql, i, scanLineComment)
				break
			}
			sb.WriteByte(c)
			i++
		case '/':
			if i+1 < len(sql) && sql[i+1] == '*' {
				i = copySpan(&sb, sql, i, scanBlockComment)
				break
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}

	for n, u := range used {
		if !u {
			return "", fmt.Errorf("arg %d was not referenced by any placeholder", n+1)
		}
	}
	return sb.String(), nil
}

func copySpan(sb *strings.Builder, sql string, start int, scan func(string, int) int) int {
	end := scan(sql, start)
	sb.WriteString(sql[start:end])
	return end
}

// scanSingleQuote consumes a '...' literal, honoring '' escapes.
func scanSingleQuote(sql string, i int) int {
	for i++; i < len(sql); i++ {
		if sql[i] == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			return i + 1
		}
	}
	return i
}

func scanDoubleQuote(sql string, i int) int {
	for i++; i < len(sql); i++ {
		if sql[i] == '"' {
			if i+1 < len(sql) && sql[i+1] == '"' {
				i++
				continue
			}
			return i + 1
		}
	}
	return i
}

func scanLineComment(sql string, i int) int {
	for ; i < len(sql); i++ {
		if sql[i] == '\n' {
			return i + 1
		}
	}
	return i
}

func scanBlockComment(sql string, i int) int {
	depth := 0
	for ; i+1 < len(sql); i++ {
		if sql[i] == '/' && sql[i+1] == '*' {
			depth++
			i++
		} else if sql[i] == '*' && sql[i+1] == '/' {
			depth--
			i++
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(sql)
}

// scanPlaceholder reports the end index and number of a $n placeholder at i.
func scanPlaceholder(sql string, i int) (end, n int, ok bool) {
	j := i + 1
	for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
		j++
	}
	if j == i+1 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(sql[i+1 : j])
	if err != nil {
		return 0, 0, false
	}
	return j, n, true
}

// scanDollarQuote consumes a $tag$...$tag$ string starting at i, if one starts there.
func scanDollarQuote(sql string, i int) (int, bool) {
	j := i + 1
	for j < len(sql) && (sql[j] == '_' || isAlpha(sql[j])) {
		j++
	}
	if j >= len(sql) || sql[j] != '$' {
		return 0, false
	}
	tag := sql[i : j+1]
	end := strings.Index(sql[j+1:], tag)
	if end < 0 {
		return len(sql), true
	}
	return j + 1 + end + len(tag), true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
