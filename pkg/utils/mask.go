package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@/]+)(@)`)

var keyParamRegex = regexp.MustCompile(`([?&]key=)[^&]+`)

// MaskDSN hides the password portion of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskURLKey hides the value of a "key" query parameter so request URLs can be logged.
func MaskURLKey(rawURL string) string {
	return keyParamRegex.ReplaceAllString(rawURL, "${1}***")
}

// MaskSecret keeps the last four characters of a secret for log correlation.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
