package validation

import (
	"context"
	"fmt"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/metrics"
	logx "bookgpt/backend/pkg/logger"
)

// ResponseCorrector asks the model to rewrite its own malformed output into
// the required JSON shape.
type ResponseCorrector struct {
	llmClient deps.LLMClient
}

// NewResponseCorrector creates a new ResponseCorrector
func NewResponseCorrector(llmClient deps.LLMClient) *ResponseCorrector {
	return &ResponseCorrector{llmClient: llmClient}
}

// Repair sends one normalization request at temperature 0 and returns the raw reply.
// base is copied, never modified.
func (c *ResponseCorrector) Repair(ctx context.Context, source string, base llm.Configuration, systemPrompt, userPrompt string) (string, error) {
	logx.Debug().Str("source", source).Str("input", truncateForLog(userPrompt, 200)).Msg("repair pass")

	resp, err := c.llmClient.Send(ctx, llm.Request{
		Config:   base.WithSystemPrompt(systemPrompt).WithTemperature(0),
		Messages: []llm.Message{llm.UserText(userPrompt)},
	})
	if err != nil {
		metrics.RepairPassTotal.WithLabelValues(source, "error").Inc()
		return "", fmt.Errorf("repair %s: %w", source, err)
	}

	metrics.RepairPassTotal.WithLabelValues(source, "ok").Inc()
	logx.Debug().Str("source", source).Int("length", len(resp.Text)).Msg("repair pass completed")
	return resp.Text, nil
}
