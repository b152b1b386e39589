// Package logutil holds helpers for writing untrusted values to the log.
package logutil

import (
	"strings"
	"unicode"
)

// maxLogValue caps how much of a single untrusted value reaches the log.
const maxLogValue = 256

// SanitizeForLog makes user-supplied text safe to interpolate into a log
// line. Line breaks and tabs become spaces, other control characters are
// dropped and the result is truncated so one value cannot forge or flood
// entries.
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	if len(s) > maxLogValue {
		// Cut on a rune boundary.
		cut := maxLogValue
		for cut > 0 && !utf8RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
