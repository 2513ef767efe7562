package agent

import (
	"context"

	"bookgpt/backend/internal/agent/prompt"
	"bookgpt/backend/internal/model"
)

// ImageGenerator is satisfied by llm.OpenRouterClient.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, apiKey, model, prompt string) ([]byte, error)
}

// PortraitService renders character portraits with an image model.
type PortraitService struct {
	images  ImageGenerator
	apiKey  string
	model   string
	builder *prompt.Builder
}

func NewPortraitService(images ImageGenerator, apiKey, imageModel string) *PortraitService {
	return &PortraitService{
		images:  images,
		apiKey:  apiKey,
		model:   imageModel,
		builder: prompt.NewBuilder(),
	}
}

func (s *PortraitService) GeneratePortrait(ctx context.Context, character model.BookCharacter, book model.Book) ([]byte, error) {
	return s.images.GenerateImage(ctx, s.apiKey, s.model, s.builder.BuildPortraitPrompt(character, book))
}
