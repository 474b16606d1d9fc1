package observability

import (
	"strings"
	"unicode"
)

const defaultFieldLimit = 256

// scrub drops control characters and caps the length so attacker-controlled
// values cannot inject structure into log output.
func scrub(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		cleaned = string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute normalises a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrub(route, 180)
}

// SanitizeMethod normalises an HTTP method for logging.
func SanitizeMethod(method string) string {
	return scrub(method, 10)
}

// SanitizeUserID caps user identifiers to limit what leaks into logs.
func SanitizeUserID(uid string) string {
	return scrub(uid, 64)
}
