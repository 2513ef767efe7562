package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	errx "bookgpt/backend/internal/core/error"
)

type imageRequest struct {
	Model       string            `json:"model"`
	Messages    []chatWireMessage `json:"messages"`
	Modalities  []string          `json:"modalities"`
	Stream      bool              `json:"stream"`
	Size        string            `json:"size"`
	ImageConfig imageConfig       `json:"image_config"`
}

type imageConfig struct {
	Size        string `json:"size"`
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size"`
}

// GenerateImage asks an image-capable model for a square image and returns
// the decoded bytes of the first image in the reply.
func (c *OpenRouterClient) GenerateImage(ctx context.Context, apiKey, model, prompt string) ([]byte, error) {
	if apiKey == "" {
		return nil, errx.ErrMissingAPIKey
	}

	body, err := json.Marshal(imageRequest{
		Model:      model,
		Messages:   []chatWireMessage{{Role: "user", Content: prompt}},
		Modalities: []string{"image"},
		Size:       "1024x1024",
		ImageConfig: imageConfig{
			Size:        "1024x1024",
			AspectRatio: "1:1",
			ImageSize:   "1K",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal image request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, c.client, c.baseURL+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + apiKey,
	})
	if err != nil {
		return nil, err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("%w: unmarshal image response: %v", errx.ErrNetwork, err)
	}
	if len(completion.Choices) == 0 || len(completion.Choices[0].Message.Images) == 0 {
		return nil, errx.ErrNoImageFound
	}

	return c.decodeImagePayload(ctx, completion.Choices[0].Message.Images[0].ImageURL.URL)
}

// decodeImagePayload accepts a data URL or a fetchable http(s) URL.
func (c *OpenRouterClient) decodeImagePayload(ctx context.Context, payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:image/") {
		idx := strings.LastIndex(payload, ",")
		if idx < 0 {
			return nil, errx.ErrNoImageFound
		}
		data, err := base64.StdEncoding.DecodeString(payload[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errx.ErrNoImageFound, err)
		}
		return data, nil
	}
	if payload == "" {
		return nil, errx.ErrNoImageFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrNoImageFound, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errx.ErrNoImageFound
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
}
