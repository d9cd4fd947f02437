package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cozy-creator/sticker-server/internal/services/generation"
	goopenai "github.com/sashabaranov/go-openai"
)

// CompatProvider targets OpenAI compatible image endpoints (LocalAI,
// gateways, proxies) through the community client.
type CompatProvider struct {
	client *goopenai.Client
}

func NewCompatProvider(apiKey, baseURL string) *CompatProvider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Transport: &retryAfterTransport{base: http.DefaultTransport}}

	return &CompatProvider{client: goopenai.NewClientWithConfig(cfg)}
}

func (p *CompatProvider) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	request := goopenai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              1,
		Size:           req.Size,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	}
	if req.Quality != "" && req.Quality != "auto" {
		request.Quality = req.Quality
	}

	header := &retryAfterHeader{}
	resp, err := p.client.CreateImage(context.WithValue(ctx, retryAfterKey{}, header), request)
	if err != nil {
		return nil, classifyCompatError(err, parseRetryAfter(header.get(), time.Now()))
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, generation.ErrEmptyResponse
	}

	return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
}

func classifyCompatError(err error, retryAfter time.Duration) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return classify(apiErr.HTTPStatusCode, retryAfter, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return classify(reqErr.HTTPStatusCode, retryAfter, err)
	}

	return classify(0, 0, err)
}

type retryAfterKey struct{}

// retryAfterHeader carries the Retry-After header of a 429 answer back out of
// the client, whose errors do not expose response headers.
type retryAfterHeader struct {
	mu    sync.Mutex
	value string
}

func (h *retryAfterHeader) set(value string) {
	h.mu.Lock()
	h.value = value
	h.mu.Unlock()
}

func (h *retryAfterHeader) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

type retryAfterTransport struct {
	base http.RoundTripper
}

func (t *retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if header, ok := req.Context().Value(retryAfterKey{}).(*retryAfterHeader); ok {
			header.set(resp.Header.Get("Retry-After"))
		}
	}

	return resp, nil
}
