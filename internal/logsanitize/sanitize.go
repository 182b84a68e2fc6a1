// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import "strings"

// MaxLen is the longest value Sanitize returns, in bytes, before the
// truncation marker.
const MaxLen = 256

const truncated = "...(truncated)"

// Sanitize makes a request-supplied value safe for a log field (CWE-117).
// Control characters become '_' and values longer than MaxLen are cut on a
// rune boundary.
//
// Stripped ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	cut := false
	if len(s) > MaxLen {
		n := MaxLen
		// Back up to the start of a rune.
		for n > 0 && s[n]&0xC0 == 0x80 {
			n--
		}
		s = s[:n]
		cut = true
	}

	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)

	if cut {
		return s + truncated
	}
	return s
}

// Secret reports whether a value is present without revealing it.
func Secret(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}
