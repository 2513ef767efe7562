// Package llm defines the request/response envelope exchanged with chat-completion
// providers and the adapters that speak to them.
//
// A Request carries its own Configuration, so one client can serve concurrent
// callers with different system prompts and temperatures.
package llm

import (
	"context"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImagePolicy controls whether image parts are forwarded to the provider.
type ImagePolicy string

const (
	ImagesDisabled ImagePolicy = "disabled"
	ImagesAllowed  ImagePolicy = "allowed"
)

// Configuration is copied by value into every Request. The With* helpers
// return modified copies and never touch the receiver.
type Configuration struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	ImagePolicy  ImagePolicy
}

func (c Configuration) WithSystemPrompt(prompt string) Configuration {
	c.SystemPrompt = prompt
	return c
}

func (c Configuration) WithTemperature(t float32) Configuration {
	c.Temperature = t
	return c
}

func (c Configuration) WithMaxTokens(n int) Configuration {
	c.MaxTokens = n
	return c
}

type Image struct {
	MIMEType string
	Data     []byte
	URL      string
}

// Part is either text or an image.
type Part struct {
	Text  string
	Image *Image
}

func TextPart(text string) Part {
	return Part{Text: text}
}

// imagePart carries inline image bytes for multimodal requests.
func imagePart(mimeType string, data []byte) Part {
	return Part{Image: &Image{MIMEType: mimeType, Data: data}}
}

type Message struct {
	Role  Role
	Parts []Part
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart(text)}}
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Image != nil {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Images returns the image parts allowed by policy.
func (m Message) Images(policy ImagePolicy) []*Image {
	if policy != ImagesAllowed {
		return nil
	}
	var images []*Image
	for _, p := range m.Parts {
		if p.Image != nil {
			images = append(images, p.Image)
		}
	}
	return images
}

type Request struct {
	Config   Configuration
	Messages []Message
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type Response struct {
	Text    string
	Model   string
	Latency time.Duration
	Usage   Usage
}

// Client sends one request and returns the generated text.
type Client interface {
	Name() string
	Send(ctx context.Context, req Request) (*Response, error)
}
