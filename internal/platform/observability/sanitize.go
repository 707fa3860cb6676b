package observability

import (
	"strings"
	"unicode"
)

// Log fields built from request data are stripped of control characters and
// capped, so a crafted path or header cannot inject log lines.
const (
	routeLimit  = 180
	methodLimit = 10
)

func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}

	var b strings.Builder
	b.Grow(len(value))
	count := 0
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		if count == limit {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// SanitizeRoute cleans a route pattern for logging; an empty route reads as "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, methodLimit)
}
