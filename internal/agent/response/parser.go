package response

import (
	"encoding/json"
	"fmt"
	"strings"

	errx "bookgpt/backend/internal/core/error"
)

const fence = "```"

// Decode extracts the JSON payload from raw model text and unmarshals it into T.
// Any failure is reported as errx.ErrDecode.
func Decode[T any](raw string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &out); err != nil {
		return out, fmt.Errorf("%w: %v", errx.ErrDecode, err)
	}
	return out, nil
}

// ExtractJSON returns the first balanced JSON object, or failing that the first
// balanced array, found in text after trimming and removing a code fence.
// When neither exists the fence-stripped text is returned unchanged.
//
// Depth counting looks at bracket characters only. A brace inside a quoted
// string value is counted like any other.
func ExtractJSON(text string) string {
	cleaned := stripFence(strings.TrimSpace(text))

	if span, ok := balancedSpan(cleaned, '{', '}'); ok {
		return span
	}
	if span, ok := balancedSpan(cleaned, '[', ']'); ok {
		return span
	}
	return cleaned
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, fence) {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == fence {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func balancedSpan(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
