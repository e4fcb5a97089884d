// Package security contains helpers for keeping secrets out of logs.
package security

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameter name fragments that likely carry
// secrets. Matching is case-insensitive and substring based.
var sensitiveParams = []string{
	"password",
	"passwd",
	"pwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"auth",
	"credential",
	"key",
	"session",
	"sid",
}

// RedactURL strips credentials and secret-looking query parameters from
// a URL so it can be logged. Unparseable input is fully redacted.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.User != nil {
		parsed.User = url.User("[REDACTED]")
	}
	if parsed.RawQuery != "" {
		parsed.RawQuery = redactParams(parsed.Query()).Encode()
	}

	return parsed.String()
}

func redactParams(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for key, values := range params {
		lower := strings.ToLower(key)
		redact := false
		for _, pattern := range sensitiveParams {
			if strings.Contains(lower, pattern) {
				redact = true
				break
			}
		}
		if redact {
			out[key] = []string{"[REDACTED]"}
		} else {
			out[key] = values
		}
	}
	return out
}

// RedactProxyURL masks the password part of a proxy URL while keeping
// the username, which is often needed to identify the proxy account.
func RedactProxyURL(proxyURL string) string {
	if proxyURL == "" {
		return ""
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-proxy-url]"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "[REDACTED]")
		}
	}

	return parsed.String()
}

// MaskUsername keeps the first two characters of a login identifier and
// masks the rest, enough to correlate log lines without exposing the
// account name.
func MaskUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return strings.Repeat("*", len(username))
	}
	return username[:2] + strings.Repeat("*", len(username)-2)
}
