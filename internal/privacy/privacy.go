// Package privacy strips credentials from URLs and error messages before
// they reach logs, notifications or error telemetry.
package privacy

import (
	"net/url"
	"regexp"
)

const redacted = "REDACTED"

// urlPattern finds scheme://... URLs in free text. Notification URLs use
// many schemes, so any scheme is matched.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

// ScrubMessage redacts the credentials of every URL found in message.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, RedactURL)
}

// RedactURL keeps the scheme, host, port and path of rawURL and replaces
// user info and query values with REDACTED. Unparseable input is replaced
// entirely.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return redacted
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, redacted)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
