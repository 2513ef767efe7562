package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	errx "bookgpt/backend/internal/core/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRouterSend(t *testing.T) {
	var captured chatCompletionRequest
	var headers http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "gen-1",
			"model": "anthropic/claude-sonnet-4.6",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(OpenRouterConfig{BaseURL: srv.URL, Referer: "https://bookgpt.local", Title: "BookGPT"})
	resp, err := client.Send(context.Background(), Request{
		Config: Configuration{
			APIKey:       "sk-test",
			Model:        "anthropic/claude-sonnet-4.6",
			SystemPrompt: "Return valid JSON only.",
			Temperature:  0,
			MaxTokens:    700,
		},
		Messages: []Message{UserText("Find books matching: dune.")},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Text)
	assert.Equal(t, "anthropic/claude-sonnet-4.6", resp.Model)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)

	assert.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
	assert.Equal(t, "https://bookgpt.local", headers.Get("HTTP-Referer"))
	assert.Equal(t, "BookGPT", headers.Get("X-Title"))

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "Return valid JSON only.", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	require.NotNil(t, captured.Temperature, "zero temperature must still be sent")
	assert.Equal(t, float32(0), *captured.Temperature)
	assert.Equal(t, 700, captured.MaxTokens)
}

func TestOpenRouterMapsStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, errx.ErrRateLimited},
		{http.StatusUnauthorized, errx.ErrUnauthorized},
		{http.StatusForbidden, errx.ErrUnauthorized},
		{http.StatusBadGateway, errx.ErrNetwork},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))

		client := NewOpenRouterClient(OpenRouterConfig{BaseURL: srv.URL})
		_, err := client.Send(context.Background(), Request{Config: Configuration{APIKey: "k"}})
		srv.Close()

		require.Error(t, err)
		assert.ErrorIs(t, err, tt.want)
		assert.ErrorIs(t, err, errx.ErrNetwork)
	}
}

func TestOpenRouterArrayContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}]}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(OpenRouterConfig{BaseURL: srv.URL})
	resp, err := client.Send(context.Background(), Request{Config: Configuration{Model: "m"}})
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Text)
	assert.Equal(t, "m", resp.Model)
}

func TestToChatCompletionRequestImagePolicy(t *testing.T) {
	msg := Message{Role: RoleUser, Parts: []Part{TextPart("look"), imagePart("image/png", []byte{1, 2, 3})}}

	disabled := toChatCompletionRequest(Request{Config: Configuration{ImagePolicy: ImagesDisabled}, Messages: []Message{msg}})
	assert.Equal(t, "look", disabled.Messages[0].Content)

	allowed := toChatCompletionRequest(Request{Config: Configuration{ImagePolicy: ImagesAllowed}, Messages: []Message{msg}})
	parts, ok := allowed.Messages[0].Content.([]wireContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), parts[1].ImageURL.URL)
}

func TestGenerateImageDataURL(t *testing.T) {
	png := []byte("fake-png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req imageRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []string{"image"}, req.Modalities)
		assert.Equal(t, "1:1", req.ImageConfig.AspectRatio)

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","images":[{"type":"image_url","image_url":{"url":"data:image/png;base64,` +
			base64.StdEncoding.EncodeToString(png) + `"}}]}}]}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(OpenRouterConfig{BaseURL: srv.URL})
	data, err := client.GenerateImage(context.Background(), "k", "openai/gpt-5-image", "portrait")
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestGenerateImageErrors(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterConfig{})
	_, err := client.GenerateImage(context.Background(), "", "m", "p")
	assert.ErrorIs(t, err, errx.ErrMissingAPIKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"no image today"}}]}`))
	}))
	defer srv.Close()

	client = NewOpenRouterClient(OpenRouterConfig{BaseURL: srv.URL})
	_, err = client.GenerateImage(context.Background(), "k", "m", "p")
	assert.ErrorIs(t, err, errx.ErrNoImageFound)
}
