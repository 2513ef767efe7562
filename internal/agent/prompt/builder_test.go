package prompt

import (
	"testing"

	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestBuildRoleplayPrompt(t *testing.T) {
	b := NewBuilder()
	got := b.BuildRoleplayPrompt(
		model.BookCharacter{Name: "Elizabeth Bennet"},
		model.Book{Title: "Pride and Prejudice", Author: "Jane Austen"},
	)

	assert.Equal(t, "You are roleplaying as Elizabeth Bennet from Pride and Prejudice by Jane Austen. "+
		"Stay in character, keep the tone and worldview of this character. "+
		"Never say you are an AI assistant. "+
		"If the user asks outside the canon, answer as Elizabeth Bennet would, but mark assumptions briefly. "+
		"Keep answers concise and conversational.", got)
}

func TestBuildBooksPrompt(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, "Find books matching: sherlock. Return up to 12 books.", b.BuildBooksPrompt("sherlock", 12))
	assert.Contains(t, b.BuildBooksRepairPrompt("garbage"), "INPUT:\ngarbage")
	assert.Equal(t, "Book title: Dune\nAuthor: Frank Herbert\nReturn up to 20 characters.",
		b.BuildCharactersPrompt(model.Book{Title: "Dune", Author: "Frank Herbert"}, 20))
}

func TestBuildFirstMessage(t *testing.T) {
	b := NewBuilder()
	assert.Contains(t, b.BuildFirstMessage("  Dune "), "between the pages of Dune.")
	assert.Contains(t, b.BuildFirstMessage("   "), "between the pages of your chosen book.")
}

func TestBuildChatMessages(t *testing.T) {
	history := []model.ChatMessage{
		{Role: model.RoleUser, Text: "Hello"},
		{Role: model.RoleAssistant, Text: "Good day"},
		{Role: "narrator", Text: "aside"},
		{Role: model.RoleUser, Text: "Who are you?"},
	}

	got := BuildChatMessages(history)

	assert.Equal(t, []llm.Message{
		llm.UserText("Hello"),
		llm.AssistantText("Good day"),
		llm.AssistantText("aside"),
		llm.UserText("Who are you?"),
	}, got)
}
