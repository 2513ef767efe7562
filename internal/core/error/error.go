package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// StoreErrorMessage describes history store failures.
	StoreErrorMessage = "history store operation failed"
)

// Sentinel errors shared by the repositories, the chat service and the onboarding flow.
var (
	ErrValidation       = errors.New("validation failed")
	ErrDecode           = errors.New("could not decode model output")
	ErrNetwork          = errors.New("network request failed")
	ErrRateLimited      = fmt.Errorf("%w: rate limited", ErrNetwork)
	ErrUnauthorized     = fmt.Errorf("%w: unauthorized", ErrNetwork)
	ErrMissingAPIKey    = errors.New("missing API key")
	ErrEmptyResponse    = errors.New("empty response")
	ErrNoCharacterFound = errors.New("no character found")
	ErrNoImageFound     = errors.New("no image found")
	ErrPurchaseFailed   = errors.New("purchase failed")
	ErrRestoreFailed    = errors.New("restore failed")
	ErrNotFound         = errors.New("not found")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// New creates a new AppError with the provided information.
func New(err error, status int, code, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// WrapStore wraps a persistence error with a consistent status code and message.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, "STORE_ERROR", StoreErrorMessage)
}

// FromError maps any error onto an AppError carrying the status, code and
// user-facing message a handler should return.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrValidation):
		return New(err, http.StatusBadRequest, "INVALID_REQUEST", "Please enter a value and try again.")
	case errors.Is(err, ErrNotFound):
		return New(err, http.StatusNotFound, "NOT_FOUND", "The requested resource was not found.")
	case errors.Is(err, ErrMissingAPIKey):
		return New(err, http.StatusServiceUnavailable, "MISSING_API_KEY", "The AI service is not configured.")
	case errors.Is(err, ErrDecode):
		return New(err, http.StatusBadGateway, "DECODE_ERROR", "The AI returned an unexpected answer. Please try again.")
	case errors.Is(err, ErrEmptyResponse):
		return New(err, http.StatusBadGateway, "EMPTY_RESPONSE", "The character had nothing to say. Please try again.")
	case errors.Is(err, ErrRateLimited):
		return New(err, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please wait a moment and try again.")
	case errors.Is(err, ErrUnauthorized):
		return New(err, http.StatusBadGateway, "UNAUTHORIZED", "The AI service rejected our credentials.")
	case errors.Is(err, ErrNetwork):
		return New(err, http.StatusBadGateway, "NETWORK_ERROR", "Could not reach the AI service. Please try again.")
	case errors.Is(err, ErrNoCharacterFound):
		return New(err, http.StatusUnprocessableEntity, "NO_CHARACTER_FOUND", "We could not find a character for that book.")
	case errors.Is(err, ErrNoImageFound):
		return New(err, http.StatusNotFound, "NO_IMAGE_FOUND", "We could not find an image for that character.")
	case errors.Is(err, ErrPurchaseFailed):
		return New(err, http.StatusPaymentRequired, "PURCHASE_FAILED", "Purchase did not complete.")
	case errors.Is(err, ErrRestoreFailed):
		return New(err, http.StatusPaymentRequired, "RESTORE_FAILED", "No active subscription was found to restore.")
	default:
		return New(err, http.StatusInternalServerError, "INTERNAL_ERROR", SystemErrorMessage)
	}
}
