package providers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/services/generation"
)

const (
	ProviderOpenAI       = "openai"
	ProviderOpenAICompat = "openai-compat"
)

// NewFactory returns a generation.ProviderFactory bound to the process
// OpenAI settings. Only the base URL is taken from cfg; the credential always
// comes from the job.
func NewFactory(cfg *config.OpenAIConfig) generation.ProviderFactory {
	baseURL := ""
	if cfg != nil {
		baseURL = cfg.BaseURL
	}

	return func(name, apiKey string) (generation.Provider, error) {
		switch strings.ToLower(name) {
		case "", ProviderOpenAI:
			return NewOpenAIProvider(apiKey, baseURL), nil
		case ProviderOpenAICompat:
			return NewCompatProvider(apiKey, baseURL), nil
		}

		return nil, fmt.Errorf("%w: %s", generation.ErrUnknownProvider, name)
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Unparseable values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}

	if at, err := time.Parse(time.RFC1123, value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// classify maps an HTTP status code from a provider into the worker's error
// taxonomy. Every answer other than 429 is a provider error so the prompt is
// retried after the provider backoff; status 0 means no response at all.
func classify(status int, retryAfter time.Duration, err error) error {
	if status == http.StatusTooManyRequests {
		return &generation.RateLimitError{RetryAfter: retryAfter, Err: err}
	}

	return &generation.ProviderError{StatusCode: status, Err: err}
}
