/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package sanitize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'hello'", Literal("hello"))
	assert.Equal(t, "'it''s'", Literal("it's"))
	assert.Equal(t, `E'a\\b'`, Literal(`a\b`))
	assert.Equal(t, `E'it''s a\\b'`, Literal(`it's a\b`))
	assert.Equal(t, "''", Literal(""))
}

func TestIdent(t *testing.T) {
	assert.Equal(t, `"goods"`, Ident("goods"))
	assert.Equal(t, `"we""ird"`, Ident(`we"ird`))
}

func TestValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "NULL"},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint8(255), "255"},
		{uint16(65535), "65535"},
		{uint32(1 << 24), "16777216"},
		{uint64(1) << 40, "1099511627776"},
		{3.5, "3.5"},
		{"a'b", "'a''b'"},
		{[]byte{0xde, 0xad}, `'\xdead'`},
		{time.Date(2021, 7, 24, 15, 38, 59, 0, time.UTC), "'2021-07-24 15:38:59+00'"},
	}
	for _, tt := range tests {
		got, err := Value(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Value(struct{}{})
	require.Error(t, err)
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		args []interface{}
		want string
	}{
		{
			"simple",
			"select * from goods where id = $1",
			[]interface{}{42},
			"select * from goods where id = 42",
		},
		{
			"string is quoted",
			"insert into t values ($1)",
			[]interface{}{"it's"},
			"insert into t values ('it''s')",
		},
		{
			"repeated placeholder",
			"select $1, $1",
			[]interface{}{1},
			"select 1, 1",
		},
		{
			"multiple args",
			"select $2, $1",
			[]interface{}{"a", "b"},
			"select 'b', 'a'",
		},
		{
			"placeholder inside string literal untouched",
			"select '$1', $1",
			[]interface{}{9},
			"select '$1', 9",
		},
		{
			"placeholder inside quoted ident untouched",
			`select "$1" from t where x = $1`,
			[]interface{}{9},
			`select "$1" from t where x = 9`,
		},
		{
			"placeholder inside dollar quote untouched",
			"select $$ $1 $$, $1",
			[]interface{}{9},
			"select $$ $1 $$, 9",
		},
		{
			"placeholder inside line comment untouched",
			"select $1 -- $2\n",
			[]interface{}{9},
			"select 9 -- $2\n",
		},
		{
			"placeholder inside block comment untouched",
			"select /* $2 */ $1",
			[]interface{}{9},
			"select /* $2 */ 9",
		},
		{
			"multi-statement batch",
			"insert into t values ($1); insert into t values ($2)",
			[]interface{}{1, 2},
			"insert into t values (1); insert into t values (2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpolate(tt.sql, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolateUnusedArg(t *testing.T) {
	_, err := Interpolate("select $1", 1, 2)
	require.Error(t, err)
}

func TestInterpolateOutOfRange(t *testing.T) {
	_, err := Interpolate("select $2", 1)
	require.Error(t, err)
}

func TestInterpolateEscapedLiteralStaysInert(t *testing.T) {
	// The interpolated value must parse as a single literal even when it tries to
	// break out of the quotes.
	got, err := Interpolate("select $1", "'; drop table goods; --")
	require.NoError(t, err)
	assert.Equal(t, "select '''; drop table goods; --'", got)
}
