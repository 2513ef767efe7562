package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errx "bookgpt/backend/internal/core/error"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// maxResponseBody caps how much of a provider response is read.
	maxResponseBody = 10 * 1024 * 1024
)

// openrouterTransport injects the attribution headers OpenRouter expects.
type openrouterTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *openrouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.referer != "" {
		clone.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		clone.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(clone)
}

// OpenRouterConfig configures the OpenAI-compatible OpenRouter client.
type OpenRouterConfig struct {
	BaseURL string
	Referer string
	Title   string
	Timeout time.Duration
}

// OpenRouterClient implements Client for the OpenRouter chat completions API.
type OpenRouterClient struct {
	baseURL string
	client  *http.Client
}

func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenRouterClient{
		baseURL: baseURL,
		client: &http.Client{
			Transport: &openrouterTransport{
				base:    http.DefaultTransport,
				referer: cfg.Referer,
				title:   cfg.Title,
			},
			Timeout: timeout,
		},
	}
}

func (c *OpenRouterClient) Name() string { return "openrouter" }

// Send posts the request to /chat/completions.
func (c *OpenRouterClient) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(toChatCompletionRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if req.Config.APIKey != "" {
		headers["Authorization"] = "Bearer " + req.Config.APIKey
	}

	start := time.Now()
	respBody, err := doJSONRequest(ctx, c.client, c.baseURL+"/chat/completions", body, headers)
	if err != nil {
		return nil, err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", errx.ErrNetwork, err)
	}

	out := &Response{
		Model:   completion.Model,
		Latency: time.Since(start),
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}
	if out.Model == "" {
		out.Model = req.Config.Model
	}
	if len(completion.Choices) > 0 {
		out.Text = completion.Choices[0].Message.textContent()
	}
	return out, nil
}

// --- OpenAI-compatible wire types ---

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []chatWireMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float32          `json:"temperature,omitempty"`
	Modalities  []string          `json:"modalities,omitempty"`
}

type chatWireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	// Images is populated on responses from image-capable models.
	Images []wireImage `json:"images,omitempty"`
}

type wireContentPart struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL *wireURL `json:"image_url,omitempty"`
}

type wireURL struct {
	URL string `json:"url"`
}

type wireImage struct {
	Type     string  `json:"type"`
	ImageURL wireURL `json:"image_url"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireChoice struct {
	Index        int             `json:"index"`
	Message      chatWireMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toChatCompletionRequest(req Request) chatCompletionRequest {
	msgs := make([]chatWireMessage, 0, len(req.Messages)+1)
	if req.Config.SystemPrompt != "" {
		msgs = append(msgs, chatWireMessage{Role: "system", Content: req.Config.SystemPrompt})
	}

	for _, m := range req.Messages {
		images := m.Images(req.Config.ImagePolicy)
		if len(images) == 0 {
			msgs = append(msgs, chatWireMessage{Role: string(m.Role), Content: m.Text()})
			continue
		}

		parts := []wireContentPart{}
		if text := m.Text(); text != "" {
			parts = append(parts, wireContentPart{Type: "text", Text: text})
		}
		for _, img := range images {
			parts = append(parts, wireContentPart{Type: "image_url", ImageURL: &wireURL{URL: imageURL(img)}})
		}
		msgs = append(msgs, chatWireMessage{Role: string(m.Role), Content: parts})
	}

	out := chatCompletionRequest{
		Model:    req.Config.Model,
		Messages: msgs,
	}
	if req.Config.MaxTokens > 0 {
		out.MaxTokens = req.Config.MaxTokens
	}
	t := req.Config.Temperature
	out.Temperature = &t
	return out
}

func imageURL(img *Image) string {
	if img.URL != "" {
		return img.URL
	}
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// textContent handles both string content and the array-of-parts form.
func (m chatWireMessage) textContent() string {
	switch v := m.Content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, item := range v {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// doJSONRequest performs a JSON POST request and returns the response body.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", errx.ErrNetwork, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}
