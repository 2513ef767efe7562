// Package sanitize normalizes user-provided text before it reaches a prompt.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Query normalizes a search query to NFC, drops control characters and
// collapses whitespace runs to single spaces.
func Query(s string) string {
	return strings.Join(strings.Fields(stripControl(norm.NFC.String(s))), " ")
}

// Message normalizes a chat message to NFC and trims it. Line breaks and
// tabs are kept; other control characters are removed.
func Message(s string) string {
	return strings.TrimSpace(stripControl(norm.NFC.String(s)))
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}
