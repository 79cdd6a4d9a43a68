package utils

import (
	"database/sql"
	"strings"
	"time"
)

// NilIfInvalid returns nil if sql.NullTime is invalid, otherwise returns the time
func NilIfInvalid(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}

// FormatNullTime formats a sql.NullTime as RFC3339 string or empty string if invalid
func FormatNullTime(t sql.NullTime) string {
	if t.Valid {
		return t.Time.Format(time.RFC3339)
	}
	return ""
}

// SafeFilename converts a note title into a filename-safe slug for exports.
// Characters outside [a-zA-Z0-9 _-] are dropped, spaces become dashes.
func SafeFilename(title, fallback string) string {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

// IsValidHexColor reports whether s is a 6-digit hex color code like #3b82f6
func IsValidHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		isLower := c >= 'a' && c <= 'f'
		isUpper := c >= 'A' && c <= 'F'
		if !isDigit && !isLower && !isUpper {
			return false
		}
	}
	return true
}
