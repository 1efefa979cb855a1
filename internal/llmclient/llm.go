// Package llmclient abstracts over interchangeable LLM backends with
// different capability sets. A backend performs exactly one model
// round trip per Complete call; retry and timeout policy live in the
// Middleware wrappers applied by the caller.
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"threatforge/internal/content"
)

// ErrEmptyResponse is returned when the backend answered 2xx but
// produced no usable candidate text.
var ErrEmptyResponse = errors.New("llmclient: empty response from model")

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// ProviderError carries the backend name alongside the underlying
// failure so the orchestrator can persist a readable message.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}
func (e *ProviderError) Unwrap() error { return e.Err }

// ResponseFormat asked of the backend.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// CompletionRequest is a single completion call.
type CompletionRequest struct {
	Messages       []content.Message
	SystemPrompt   string
	MaxTokens      int
	Temperature    float32
	ResponseFormat ResponseFormat
}

// Usage is the backend-reported token accounting, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the raw result of one round trip.
type CompletionResponse struct {
	Content      string
	Usage        *Usage
	Model        string
	FinishReason string
}

// Provider is one concrete LLM backend. Capability queries let the
// assembler degrade per item instead of failing a whole generation on
// an unsupported content type.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	SupportsContentType(kind content.Kind) bool
	SupportedImageMimeTypes() []string
	SupportsDocumentType() bool
	Close() error
}

// Middleware wraps a Provider with a cross-cutting concern.
type Middleware func(Provider) Provider

// Chain applies middlewares left to right (the first listed is outermost).
func Chain(p Provider, mws ...Middleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

func mimeListed(mime string, supported []string) bool {
	for _, m := range supported {
		if m == mime {
			return true
		}
	}
	return false
}
