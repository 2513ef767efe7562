package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// EinoClient adapts any eino chat model to Client. Per-request settings are
// passed as call options so one model instance can be shared.
type EinoClient struct {
	chatModel model.BaseChatModel
	name      string
}

func NewEinoClient(chatModel model.BaseChatModel, name string) *EinoClient {
	if name == "" {
		name = "eino"
	}
	return &EinoClient{chatModel: chatModel, name: name}
}

// NewEinoGeminiClient builds an eino Gemini chat model on top of a genai client.
func NewEinoGeminiClient(ctx context.Context, client *genai.Client, modelName string) (*EinoClient, error) {
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  modelName,
	})
	if err != nil {
		return nil, err
	}
	return NewEinoClient(chatModel, "eino-gemini"), nil
}

func (c *EinoClient) Name() string { return c.name }

func (c *EinoClient) Send(ctx context.Context, req Request) (*Response, error) {
	opts := []model.Option{
		model.WithTemperature(req.Config.Temperature),
	}
	if req.Config.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.Config.MaxTokens))
	}
	if req.Config.Model != "" {
		opts = append(opts, model.WithModel(req.Config.Model))
	}

	start := time.Now()
	msg, err := c.chatModel.Generate(ctx, toSchemaMessages(req), opts...)
	if err != nil {
		return nil, mapProviderError(err)
	}

	out := &Response{
		Text:    msg.Content,
		Model:   req.Config.Model,
		Latency: time.Since(start),
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := msg.ResponseMeta.Usage
		out.Usage = Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func toSchemaMessages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.Config.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.Config.SystemPrompt))
	}
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, schema.AssistantMessage(m.Text(), nil))
			continue
		}
		msgs = append(msgs, schema.UserMessage(m.Text()))
	}
	return msgs
}
