package prompt

import (
	"fmt"
	"strings"

	"bookgpt/backend/internal/model"
)

// Builder constructs prompts for the repositories and the chat service
type Builder struct{}

// NewBuilder creates a new prompt builder
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) BuildBooksPrompt(query string, limit int) string {
	return fmt.Sprintf(BooksUserPrompt, query, limit)
}

func (b *Builder) BuildBooksRepairPrompt(raw string) string {
	return fmt.Sprintf(BooksRepairUserPrompt, raw)
}

func (b *Builder) BuildCharactersPrompt(book model.Book, limit int) string {
	return fmt.Sprintf(CharactersUserPrompt, book.Title, book.Author, limit)
}

func (b *Builder) BuildCharactersRepairPrompt(raw string) string {
	return fmt.Sprintf(CharactersRepairUserPrompt, raw)
}

// BuildRoleplayPrompt creates the per-call system prompt for a character chat
func (b *Builder) BuildRoleplayPrompt(character model.BookCharacter, book model.Book) string {
	return fmt.Sprintf(RoleplaySystemPrompt, character.Name, book.Title, book.Author, character.Name)
}

func (b *Builder) BuildPortraitPrompt(character model.BookCharacter, book model.Book) string {
	return fmt.Sprintf(PortraitPrompt, character.Name, book.Title, book.Author, character.Description)
}

// BuildFirstMessage renders the onboarding first-message preview.
// A blank title falls back to a generic phrase.
func (b *Builder) BuildFirstMessage(bookTitle string) string {
	title := strings.TrimSpace(bookTitle)
	if title == "" {
		title = FallbackBookTitle
	}
	return fmt.Sprintf(FirstMessageTemplate, title)
}
