package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are matched as case-insensitive substrings of query
// parameter names.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"secret",
	"token",
	"password",
	"auth",
	"key",
	"credential",
	"signature",
}

const redacted = "[REDACTED]"

// sanitizeURL returns u as a string with credentials removed: userinfo is
// dropped and sensitive query values are replaced.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	safe := *u
	if safe.User != nil {
		safe.User = url.User(redacted)
	}

	q := u.Query()
	for param := range q {
		if isSensitiveParam(param) {
			q.Set(param, redacted)
		}
	}
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
