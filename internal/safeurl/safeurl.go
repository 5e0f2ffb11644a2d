// Package safeurl validates backend base URLs and keeps credentials out of
// logged URLs.
package safeurl

import (
	"errors"
	"net/url"
	"strings"
)

const mask = "***"

// sensitiveParams are query keys whose values never appear in logs or errors.
var sensitiveParams = map[string]bool{
	"password":     true,
	"username":     true,
	"token":        true,
	"sessiontoken": true,
	"jwt":          true,
}

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return (s == "http" || s == "https") && parsed.Host != ""
}

// Redact returns raw with userinfo passwords and sensitive query values
// replaced by "***". Unparseable input is returned unchanged.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), mask)
		}
	}
	q := u.Query()
	changed := false
	for k := range q {
		if sensitiveParams[strings.ToLower(k)] {
			q.Set(k, mask)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactError returns err with the URL of a wrapped *url.Error passed
// through Redact. The returned error keeps the original cause, so errors.Is
// and errors.As still see through it. The input is not modified.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		c := *ue
		c.URL = Redact(ue.URL)
		return &c
	}
	return err
}
