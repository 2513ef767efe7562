package validation

import (
	"context"
)

// ValidationInput is one decoded entry, as named string fields.
type ValidationInput struct {
	Source string
	Fields []Field
}

// Field is a named value of a decoded entry
type Field struct {
	Name  string
	Value string
}

// ValidationResult is the outcome of a validation
type ValidationResult struct {
	IsValid bool
	Reason  string
	Field   string
}

// OK returns a successful validation result
func OK() ValidationResult {
	return ValidationResult{IsValid: true}
}

// Fail returns a failed validation result
func Fail(field, reason string) ValidationResult {
	return ValidationResult{IsValid: false, Field: field, Reason: reason}
}

// Validator is the interface for entry rules
type Validator interface {
	// Name returns the validator's name for logging
	Name() string
	// Validate checks one entry
	Validate(ctx context.Context, input ValidationInput) ValidationResult
}

// truncateForLog truncates a string for logging purposes
func truncateForLog(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
