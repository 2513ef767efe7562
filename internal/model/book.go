package model

import (
	"strings"

	"github.com/google/uuid"
)

type Book struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// NewBook assigns a fresh identity to a title/author pair.
func NewBook(title, author string) Book {
	return Book{
		ID:     uuid.NewString(),
		Title:  title,
		Author: author,
	}
}

// StorageKey is the case and whitespace insensitive identity used for
// deduplication and cache lookups.
func (b Book) StorageKey() string {
	return NormalizeKey(b.Title) + "|" + NormalizeKey(b.Author)
}

type BookCharacter struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewBookCharacter(name, description string) BookCharacter {
	return BookCharacter{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
}

// NameKey normalizes the character name for use as a cache sub-key.
func (c BookCharacter) NameKey() string {
	return NormalizeKey(c.Name)
}

// PortraitKey identifies a cached portrait for a character of a book.
func PortraitKey(book Book, character BookCharacter) string {
	return book.StorageKey() + "|" + character.NameKey()
}

// NormalizeKey trims, lowercases and collapses internal whitespace runs.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
