package validation

import (
	"context"

	logx "bookgpt/backend/pkg/logger"
)

// Pipeline runs multiple validators in sequence
type Pipeline struct {
	validators []Validator
}

// NewPipeline creates a new validation pipeline
func NewPipeline(validators ...Validator) *Pipeline {
	return &Pipeline{validators: validators}
}

// BooksPipeline filters decoded book entries.
func BooksPipeline() *Pipeline {
	return NewPipeline(BookPlaceholders(), NewTemplateTokenValidator(), NewPromptEchoValidator())
}

// CharactersPipeline filters decoded character entries.
func CharactersPipeline() *Pipeline {
	return NewPipeline(CharacterPlaceholders(), NewTemplateTokenValidator(), NewPromptEchoValidator())
}

// Validate returns the first failing result, or OK when every validator passes
func (p *Pipeline) Validate(ctx context.Context, input ValidationInput) ValidationResult {
	for _, v := range p.validators {
		result := v.Validate(ctx, input)
		if result.IsValid {
			continue
		}

		logx.Debug().
			Str("source", input.Source).
			Str("validator", v.Name()).
			Str("field", result.Field).
			Str("reason", result.Reason).
			Msg("entry rejected")
		return result
	}
	return OK()
}
