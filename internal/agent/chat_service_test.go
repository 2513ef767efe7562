package agent

import (
	"context"
	"testing"

	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hobbit = model.Book{Title: "The Hobbit", Author: "J.R.R. Tolkien"}
	bilbo  = model.BookCharacter{Name: "Bilbo Baggins", Description: "Reluctant adventurer"}
)

func TestSendMessageMissingAPIKey(t *testing.T) {
	client := &scriptedClient{replies: []string{"hello"}}
	service := NewCharacterChatService(client, llm.Configuration{Model: "m"})

	history := []model.ChatMessage{model.NewChatMessage(model.RoleUser, "hi")}
	_, err := service.SendMessage(context.Background(), "hi", history, bilbo, hobbit)

	assert.ErrorIs(t, err, errx.ErrMissingAPIKey)
	assert.Zero(t, client.calls(), "no request may be sent without an API key")
}

func TestSendMessageEmptyResponse(t *testing.T) {
	client := &scriptedClient{replies: []string{"   \n  "}}
	service := NewCharacterChatService(client, baseConfig)

	history := []model.ChatMessage{model.NewChatMessage(model.RoleUser, "hi")}
	_, err := service.SendMessage(context.Background(), "hi", history, bilbo, hobbit)

	assert.ErrorIs(t, err, errx.ErrEmptyResponse)
	assert.Equal(t, 1, client.calls())
}

func TestSendMessageMapsHistory(t *testing.T) {
	client := &scriptedClient{replies: []string{"  Good morning!  "}}
	chatConfig := baseConfig.WithTemperature(0.7).WithMaxTokens(800)
	service := NewCharacterChatService(client, chatConfig)

	history := []model.ChatMessage{
		model.NewChatMessage(model.RoleUser, "Good morning"),
		model.NewChatMessage(model.RoleAssistant, "What do you mean?"),
		model.NewChatMessage(model.RoleUser, "Tell me about the ring"),
	}

	reply, err := service.SendMessage(context.Background(), "Tell me about the ring", history, bilbo, hobbit)
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, "Good morning!", reply.Text)
	assert.NotEmpty(t, reply.ID)
	assert.False(t, reply.CreatedAt.IsZero())

	require.Equal(t, 1, client.calls())
	sent := client.requests[0]
	assert.Equal(t, float32(0.7), sent.Config.Temperature)
	assert.Equal(t, 800, sent.Config.MaxTokens)
	assert.Contains(t, sent.Config.SystemPrompt, "You are roleplaying as Bilbo Baggins from The Hobbit by J.R.R. Tolkien.")
	assert.Contains(t, sent.Config.SystemPrompt, "Never say you are an AI assistant.")

	require.Len(t, sent.Messages, 3, "the service does not append the user turn itself")
	assert.Equal(t, llm.RoleUser, sent.Messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, sent.Messages[1].Role)
	assert.Equal(t, "Tell me about the ring", sent.Messages[2].Text())
}

func TestSendMessageDoesNotLeakPromptBetweenCharacters(t *testing.T) {
	client := &scriptedClient{replies: []string{"one", "two"}}
	service := NewCharacterChatService(client, baseConfig)
	gandalf := model.BookCharacter{Name: "Gandalf"}

	history := []model.ChatMessage{model.NewChatMessage(model.RoleUser, "hi")}
	_, err := service.SendMessage(context.Background(), "hi", history, bilbo, hobbit)
	require.NoError(t, err)
	_, err = service.SendMessage(context.Background(), "hi", history, gandalf, hobbit)
	require.NoError(t, err)

	assert.Contains(t, client.requests[0].Config.SystemPrompt, "Bilbo Baggins")
	assert.Contains(t, client.requests[1].Config.SystemPrompt, "Gandalf")
	assert.NotContains(t, client.requests[1].Config.SystemPrompt, "Bilbo")
	assert.Empty(t, baseConfig.SystemPrompt)
}
