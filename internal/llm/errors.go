package llm

import (
	"errors"
	"fmt"
	"net/http"

	errx "bookgpt/backend/internal/core/error"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapHTTPError maps a provider status code and body onto the shared network errors.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, truncate(string(body), 512))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", errx.ErrRateLimited, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", errx.ErrUnauthorized, detail)
	default:
		return fmt.Errorf("%w: %s", errx.ErrNetwork, detail)
	}
}

// mapProviderError classifies errors returned by SDK based providers.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errx.ErrNetwork) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.Code, []byte(apiErr.Message))
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.ResourceExhausted:
			return fmt.Errorf("%w: %s", errx.ErrRateLimited, s.Message())
		case codes.Unauthenticated, codes.PermissionDenied:
			return fmt.Errorf("%w: %s", errx.ErrUnauthorized, s.Message())
		}
	}

	return fmt.Errorf("%w: %v", errx.ErrNetwork, err)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
