package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/cozy-creator/sticker-server/internal/services/generation"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider calls the images endpoint through the official client.
// Client retries are disabled; the worker owns backoff.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt: openai.F(req.Prompt),
		Model:  openai.F(openai.ImageModel(req.Model)),
		N:      openai.F(int64(1)),
	}
	if req.Size != "" {
		params.Size = openai.F(openai.ImageGenerateParamsSize(req.Size))
	}
	if req.Quality != "" && req.Quality != "auto" {
		params.Quality = openai.F(openai.ImageGenerateParamsQuality(req.Quality))
	}
	// gpt-image models always answer with base64 and reject the field
	if strings.HasPrefix(req.Model, "dall-e") {
		params.ResponseFormat = openai.F(openai.ImageGenerateParamsResponseFormatB64JSON)
	}

	resp, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, generation.ErrEmptyResponse
	}

	return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return classify(apiErr.StatusCode, retryAfter, err)
	}

	// no response at all: connection refused, reset, DNS
	return classify(0, 0, err)
}
