package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageKeyIgnoresCaseAndWhitespace(t *testing.T) {
	a := NewBook("  The Hobbit ", "J.R.R. Tolkien")
	b := NewBook("the hobbit", "j.r.r. tolkien")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.StorageKey(), b.StorageKey())
	assert.Equal(t, "the hobbit|j.r.r. tolkien", a.StorageKey())
}

func TestNormalizeKeyCollapsesRuns(t *testing.T) {
	assert.Equal(t, "war and peace", NormalizeKey("War   and\t\nPeace "))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestPortraitKey(t *testing.T) {
	book := NewBook("Dune", "Frank Herbert")
	character := NewBookCharacter("  Paul  Atreides", "heir")

	assert.Equal(t, "dune|frank herbert|paul atreides", PortraitKey(book, character))
}
