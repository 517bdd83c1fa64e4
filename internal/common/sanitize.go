package common

import "strings"

// SanitizePagePath converts a URL path into a filesystem-safe directory name.
// Leading and trailing slashes are stripped, interior slashes become "-",
// any remaining rune outside [A-Za-z0-9_-] becomes "_", repeated separators
// collapse to one, and an empty result falls back to "index".
func SanitizePagePath(urlPath string) string {
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" {
		return "index"
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	var last rune
	for _, r := range trimmed {
		var mapped rune
		switch {
		case r == '/':
			mapped = '-'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			mapped = r
		default:
			mapped = '_'
		}
		if (mapped == '-' || mapped == '_') && mapped == last {
			continue
		}
		b.WriteRune(mapped)
		last = mapped
	}

	out := b.String()
	if out == "" {
		return "index"
	}
	return out
}
