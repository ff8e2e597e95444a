// Package assist implements the AI call pipeline: request building, HTTP
// dispatch against an OpenAI-compatible endpoint, and the service that ties
// them to the credential resolver and the observability wrapper.
package assist

import (
	"errors"
	"fmt"
)

// Dispatch failures. Messages are user-facing and deliberately short; the
// handler layer maps them to HTTP statuses without exposing internals.
var (
	ErrEmptyPrompt       = errors.New("prompt is required")
	ErrTimeout           = errors.New("AI API request timed out")
	ErrInvalidCredential = errors.New("invalid API key")
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrInvalidResponse   = errors.New("invalid response from AI API")
)

// ProviderError is a non-2xx upstream response that is neither an auth nor a
// rate-limit failure.
type ProviderError struct {
	Status int
	Detail string
}

func (e *ProviderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("AI API error (status %d)", e.Status)
	}
	return fmt.Sprintf("AI API error (status %d): %s", e.Status, e.Detail)
}
