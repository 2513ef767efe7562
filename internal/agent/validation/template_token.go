package validation

import (
	"context"
	"regexp"
)

// templateTokenRegex matches a whole value that is an angle-bracket slot such
// as <book title>, optionally wrapped in quotes.
var templateTokenRegex = regexp.MustCompile(`^"?<[^<>]+>"?$`)

// TemplateTokenValidator rejects slot tokens that are not in a fixed placeholder list.
type TemplateTokenValidator struct{}

func NewTemplateTokenValidator() *TemplateTokenValidator {
	return &TemplateTokenValidator{}
}

func (v *TemplateTokenValidator) Name() string {
	return "TemplateTokenValidator"
}

func (v *TemplateTokenValidator) Validate(_ context.Context, input ValidationInput) ValidationResult {
	for _, f := range input.Fields {
		if templateTokenRegex.MatchString(normalize(f.Value)) {
			return Fail(f.Name, "template token "+truncateForLog(f.Value, 40))
		}
	}
	return OK()
}
