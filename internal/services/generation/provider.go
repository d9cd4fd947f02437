package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request is a single image generation call.
type Request struct {
	Prompt  string
	Model   string
	Size    string
	Quality string
}

// Provider turns a prompt into encoded image bytes. Implementations classify
// failures as *RateLimitError or *ProviderError so the worker can pick a
// backoff; any other error is retried without waiting.
type Provider interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// ProviderFactory builds a provider for a named backend and credential.
type ProviderFactory func(name, apiKey string) (Provider, error)

var (
	ErrMissingCredential = errors.New("image provider credential is missing")
	ErrUnknownProvider   = errors.New("unknown image provider")
	ErrEmptyResponse     = errors.New("image provider returned no image")
)

// RateLimitError signals the provider asked us to slow down. RetryAfter is
// zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// ProviderError is a transient provider side failure (5xx, timeouts, refused
// connections). StatusCode is zero for transport failures.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
