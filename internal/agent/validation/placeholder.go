package validation

import (
	"context"
	"strings"
)

// PlaceholderValidator rejects entries whose fields are blank or equal one of
// the sample values shown to the model in the output format.
type PlaceholderValidator struct {
	placeholders map[string]struct{}
}

// NewPlaceholderValidator matches values case-insensitively after trimming.
func NewPlaceholderValidator(placeholders ...string) *PlaceholderValidator {
	set := make(map[string]struct{}, len(placeholders))
	for _, p := range placeholders {
		set[normalize(p)] = struct{}{}
	}
	return &PlaceholderValidator{placeholders: set}
}

// BookPlaceholders are the sample values of the books output format.
func BookPlaceholders() *PlaceholderValidator {
	return NewPlaceholderValidator("string", "title", "author", "<book title>", "<author name>", `"string"`)
}

// CharacterPlaceholders are the sample values of the characters output format.
func CharacterPlaceholders() *PlaceholderValidator {
	return NewPlaceholderValidator("string", "name", "description", "<character name>", "<short personality summary>", `"string"`)
}

func (v *PlaceholderValidator) Name() string {
	return "PlaceholderValidator"
}

func (v *PlaceholderValidator) Validate(_ context.Context, input ValidationInput) ValidationResult {
	for _, f := range input.Fields {
		value := normalize(f.Value)
		if value == "" {
			return Fail(f.Name, "empty value")
		}
		if _, ok := v.placeholders[value]; ok {
			return Fail(f.Name, "placeholder value "+value)
		}
	}
	return OK()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
