package prompt

import (
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/model"
)

// BuildChatMessages maps chat history to provider messages in order.
// Only user turns keep the user role; everything else is sent as assistant.
func BuildChatMessages(history []model.ChatMessage) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleUser {
			messages = append(messages, llm.UserText(m.Text))
			continue
		}
		messages = append(messages, llm.AssistantText(m.Text))
	}
	return messages
}
