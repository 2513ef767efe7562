package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery(t *testing.T) {
	assert.Equal(t, "the hobbit", Query("  the \t hobbit\n"))
	assert.Equal(t, "", Query(" \n\t "))
	assert.Equal(t, "ab", Query("a\x00b"))
	// "e" followed by a combining acute accent composes to a single rune.
	assert.Equal(t, "caf\u00e9", Query("cafe\u0301"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "line one\nline two", Message("  line one\nline two \x07 "))
	assert.Equal(t, "", Message("   "))
}
