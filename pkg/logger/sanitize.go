package logger

import (
	"strings"
)

// MaskUsername masks a username for logging (e.g., "s****A" stays matchable
// across log lines without exposing the full identifier).
func MaskUsername(username string) string {
	if len(username) <= 2 {
		return strings.Repeat("*", len(username))
	}
	return string(username[0]) + strings.Repeat("*", len(username)-2) + string(username[len(username)-1])
}

// SanitizeQueryString reports whether a query string contains sensitive
// parameters and should be redacted wholesale from request logs.
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"token",
		"device_token",
		"qr_master_code",
		"code",
		"secret",
	}

	lower := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(lower, param+"=") {
			return true
		}
	}
	return false
}
