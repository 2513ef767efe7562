package llm

import (
	"context"
	"time"

	"bookgpt/backend/internal/metrics"
	logx "bookgpt/backend/pkg/logger"
	"bookgpt/backend/pkg/tracer"

	"go.opentelemetry.io/otel/trace"
)

// ObservedClient logs, traces and meters every request sent through it.
type ObservedClient struct {
	inner       Client
	logPayloads bool
}

// NewObservedClient wraps inner. When logPayloads is set, prompts and replies
// are written to the debug log.
func NewObservedClient(inner Client, logPayloads bool) *ObservedClient {
	return &ObservedClient{inner: inner, logPayloads: logPayloads}
}

func (c *ObservedClient) Name() string { return c.inner.Name() }

func (c *ObservedClient) Send(ctx context.Context, req Request) (*Response, error) {
	provider := c.inner.Name()
	ctx, span := tracer.StartSpan(ctx, "llm.send",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", provider),
			tracer.StringAttr("llm.model", req.Config.Model),
			tracer.Float64Attr("llm.temperature", float64(req.Config.Temperature)),
			tracer.IntAttr("llm.max_tokens", req.Config.MaxTokens),
		),
	)
	defer span.End()

	c.logRequest(provider, req)

	start := time.Now()
	resp, err := c.inner.Send(ctx, req)
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(provider, req.Config.Model).Observe(elapsed.Seconds())

	if err != nil {
		tracer.RecordError(span, err)
		metrics.LLMCallTotal.WithLabelValues(provider, req.Config.Model, "error").Inc()
		logx.Error().
			Err(err).
			Str("provider", provider).
			Str("model", req.Config.Model).
			Dur("elapsed", elapsed).
			Msg("llm request failed")
		return nil, err
	}

	if resp.Latency == 0 {
		resp.Latency = elapsed
	}
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", resp.Usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	tracer.SetOK(span)
	metrics.LLMCallTotal.WithLabelValues(provider, req.Config.Model, "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(provider, req.Config.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(provider, req.Config.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	event := logx.Debug().
		Str("provider", provider).
		Str("model", resp.Model).
		Int64("latency_ms", resp.Latency.Milliseconds()).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("total_tokens", resp.Usage.TotalTokens)
	if c.logPayloads {
		event = event.Str("text", resp.Text)
	}
	event.Msg("llm response")

	return resp, nil
}

func (c *ObservedClient) logRequest(provider string, req Request) {
	event := logx.Debug().
		Str("provider", provider).
		Str("model", req.Config.Model).
		Float32("temperature", req.Config.Temperature).
		Int("max_tokens", req.Config.MaxTokens).
		Int("messages", len(req.Messages))
	if c.logPayloads {
		turns := make([]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			turns = append(turns, string(m.Role)+": "+m.Text())
		}
		event = event.Str("system_prompt", req.Config.SystemPrompt).Strs("turns", turns)
	}
	event.Msg("llm request")
}
