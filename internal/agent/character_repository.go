package agent

import (
	"context"
	"fmt"
	"strings"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/agent/prompt"
	"bookgpt/backend/internal/agent/response"
	"bookgpt/backend/internal/agent/validation"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/metrics"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"
)

// MaxCharacters caps the number of characters returned for one book.
const MaxCharacters = 20

type characterItem struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type charactersPayload struct {
	Characters []characterItem
}

func (p *charactersPayload) UnmarshalJSON(data []byte) error {
	items, err := response.UnmarshalList(data, []string{"characters", "items", "results"}, func(i characterItem) bool {
		return i.Name != nil && i.Description != nil
	})
	if err != nil {
		return err
	}
	p.Characters = items
	return nil
}

// LLMCharactersRepository lists notable characters of a book.
type LLMCharactersRepository struct {
	client    deps.LLMClient
	config    llm.Configuration
	builder   *prompt.Builder
	corrector *validation.ResponseCorrector
	pipeline  *validation.Pipeline
}

func NewLLMCharactersRepository(client deps.LLMClient, config llm.Configuration) *LLMCharactersRepository {
	return &LLMCharactersRepository{
		client:    client,
		config:    config,
		builder:   prompt.NewBuilder(),
		corrector: validation.NewResponseCorrector(client),
		pipeline:  validation.CharactersPipeline(),
	}
}

// Characters returns up to MaxCharacters distinct characters of book.
func (r *LLMCharactersRepository) Characters(ctx context.Context, book model.Book) ([]model.BookCharacter, error) {
	if strings.TrimSpace(book.Title) == "" {
		return nil, fmt.Errorf("%w: book title is empty", errx.ErrValidation)
	}
	logx.Debug().Str("book", book.Title).Str("author", book.Author).Msg("characters")

	resp, err := r.client.Send(ctx, llm.Request{
		Config:   r.config.WithSystemPrompt(prompt.CharactersSystemPrompt),
		Messages: []llm.Message{llm.UserText(r.builder.BuildCharactersPrompt(book, MaxCharacters))},
	})
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	logx.Debug().
		Str("model", resp.Model).
		Int("tokens", resp.Usage.TotalTokens).
		Int("text_length", len(resp.Text)).
		Msg("characters response")

	payload, err := response.Decode[charactersPayload](resp.Text)
	if err != nil {
		logx.Warn().Err(err).Str("raw_head", head(resp.Text, 400)).Msg("characters first decode failed")

		repaired, repairErr := r.corrector.Repair(ctx, "characters", r.config,
			prompt.CharactersRepairSystemPrompt, r.builder.BuildCharactersRepairPrompt(resp.Text))
		if repairErr != nil {
			return nil, repairErr
		}
		payload, err = response.Decode[charactersPayload](repaired)
		if err != nil {
			return nil, fmt.Errorf("list characters: %w", err)
		}
	}

	characters := make([]model.BookCharacter, 0, len(payload.Characters))
	seen := make(map[string]struct{}, len(payload.Characters))
	for _, item := range payload.Characters {
		name := strings.TrimSpace(*item.Name)
		description := strings.TrimSpace(*item.Description)

		result := r.pipeline.Validate(ctx, validation.ValidationInput{
			Source: "characters",
			Fields: []validation.Field{{Name: "name", Value: name}, {Name: "description", Value: description}},
		})
		if !result.IsValid {
			metrics.PlaceholderDropped.WithLabelValues("characters").Inc()
			continue
		}

		character := model.NewBookCharacter(name, description)
		if _, dup := seen[character.NameKey()]; dup {
			continue
		}
		seen[character.NameKey()] = struct{}{}
		characters = append(characters, character)
		if len(characters) == MaxCharacters {
			break
		}
	}

	logx.Debug().Int("count", len(characters)).Msg("characters parsed")
	return characters, nil
}
