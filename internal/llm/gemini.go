package llm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient implements Client using the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new GeminiClient. model is used when the request
// configuration does not name one.
func NewGeminiClient(client *genai.Client, model string) *GeminiClient {
	return &GeminiClient{
		client: client,
		model:  model,
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

// Send generates content using the Gemini API.
func (c *GeminiClient) Send(ctx context.Context, req Request) (*Response, error) {
	model := req.Config.Model
	if model == "" {
		model = c.model
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Config.Temperature),
	}
	if req.Config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.Config.MaxTokens)
	}
	if req.Config.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Config.SystemPrompt}},
		}
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, toGeminiContents(req), config)
	if err != nil {
		return nil, mapProviderError(err)
	}

	out := &Response{
		Text:    geminiText(resp),
		Model:   model,
		Latency: time.Since(start),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func toGeminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		if text := m.Text(); text != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		for _, img := range m.Images(req.Config.ImagePolicy) {
			if len(img.Data) == 0 {
				continue
			}
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
			})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
