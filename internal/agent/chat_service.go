package agent

import (
	"context"
	"fmt"
	"strings"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/agent/prompt"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"
)

// CharacterChatService answers in the voice of a book character.
type CharacterChatService struct {
	client  deps.LLMClient
	config  llm.Configuration
	builder *prompt.Builder
}

func NewCharacterChatService(client deps.LLMClient, config llm.Configuration) *CharacterChatService {
	return &CharacterChatService{
		client:  client,
		config:  config,
		builder: prompt.NewBuilder(),
	}
}

// SendMessage returns the character's reply to history. The caller appends
// the new user turn to history before calling; userText is only logged.
func (s *CharacterChatService) SendMessage(ctx context.Context, userText string, history []model.ChatMessage, character model.BookCharacter, book model.Book) (model.ChatMessage, error) {
	logx.Debug().
		Int("user_text_length", len(userText)).
		Int("history", len(history)).
		Str("character", character.Name).
		Msg("sendMessage")

	if s.config.APIKey == "" {
		logx.Error().Msg("sendMessage failed: missing API key")
		return model.ChatMessage{}, errx.ErrMissingAPIKey
	}

	resp, err := s.client.Send(ctx, llm.Request{
		Config:   s.config.WithSystemPrompt(s.builder.BuildRoleplayPrompt(character, book)),
		Messages: prompt.BuildChatMessages(history),
	})
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("chat with %s: %w", character.Name, err)
	}
	logx.Debug().
		Str("model", resp.Model).
		Int64("latency_ms", resp.Latency.Milliseconds()).
		Int("tokens", resp.Usage.TotalTokens).
		Int("text_length", len(resp.Text)).
		Msg("sendMessage response")

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		logx.Error().Str("raw", resp.Text).Msg("response text is empty")
		return model.ChatMessage{}, errx.ErrEmptyResponse
	}

	return model.NewChatMessage(model.RoleAssistant, text), nil
}
