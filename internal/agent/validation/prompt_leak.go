package validation

import (
	"context"
	"strings"
)

// PromptEchoValidator rejects entries whose whole value is an instruction
// phrase from the structured output prompts. Titles that merely contain such
// a phrase are kept.
type PromptEchoValidator struct {
	// sensitiveKeywords are compared against the normalized field value
	sensitiveKeywords []string
}

// NewPromptEchoValidator creates a new PromptEchoValidator
func NewPromptEchoValidator() *PromptEchoValidator {
	return &PromptEchoValidator{
		sensitiveKeywords: []string{
			"return valid json only",
			"return valid json",
			"output format",
			"no markdown, no explanations",
			"no markdown",
			"do not add markdown",
			"convert input into valid json only",
			"normalize the following content into the required json structure",
		},
	}
}

// Name returns the validator name
func (v *PromptEchoValidator) Name() string {
	return "PromptEchoValidator"
}

// Validate checks every field for an echoed instruction phrase
func (v *PromptEchoValidator) Validate(_ context.Context, input ValidationInput) ValidationResult {
	for _, f := range input.Fields {
		value := normalizeEcho(f.Value)
		for _, keyword := range v.sensitiveKeywords {
			if value == keyword {
				return Fail(f.Name, "prompt echo: "+keyword)
			}
		}
	}
	return OK()
}

// normalizeEcho lowercases, collapses whitespace and drops surrounding quotes
// and trailing punctuation.
func normalizeEcho(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	s = strings.Trim(s, "\"'`")
	return strings.TrimRight(s, ".:!")
}
