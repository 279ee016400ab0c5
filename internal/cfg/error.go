package cfg

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// parseConfigError wraps a failure to interpret a connection string. The offending
// string is carried for context with any password scrubbed out, since config errors
// routinely end up in logs.
type parseConfigError struct {
	connString string
	msg        string
	err        error
}

func (e *parseConfigError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("cannot parse `%s`: %s", redactPassword(e.connString), e.msg)
	}
	return fmt.Sprintf("cannot parse `%s`: %s (%s)", redactPassword(e.connString), e.msg, e.err)
}

func (e *parseConfigError) Unwrap() error {
	return e.err
}

var (
	dsnPasswordRE = regexp.MustCompile(`password=('[^']*'|[^ ]*)`)
	urlPasswordRE = regexp.MustCompile(`:[^:@/]+?@`)
)

// redactPassword scrubs password material from a connection string, including strings
// too malformed for the URL parser to take apart.
func redactPassword(connString string) string {
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		if u, err := url.Parse(connString); err == nil {
			if _, set := u.User.Password(); set {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
			}
			return u.String()
		}
		return urlPasswordRE.ReplaceAllLiteralString(connString, ":xxxxx@")
	}
	return dsnPasswordRE.ReplaceAllLiteralString(connString, "password=xxxxx")
}
