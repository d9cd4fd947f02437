package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/services/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageServer(t *testing.T, status int, headers map[string]string, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func successBody(data []byte) string {
	return `{"created":1,"data":[{"b64_json":"` + base64.StdEncoding.EncodeToString(data) + `"}]}`
}

const errorBody = `{"error":{"message":"nope","type":"server_error","code":null,"param":null}}`

func providersFor(url string) map[string]generation.Provider {
	return map[string]generation.Provider{
		ProviderOpenAI:       NewOpenAIProvider("sk-test", url+"/"),
		ProviderOpenAICompat: NewCompatProvider("sk-test", url+"/v1"),
	}
}

func TestProvidersDecodeImage(t *testing.T) {
	srv := imageServer(t, http.StatusOK, nil, successBody([]byte("png")))

	for name, p := range providersFor(srv.URL) {
		data, err := p.Generate(context.Background(), generation.Request{Prompt: "cat", Model: "gpt-image-1", Size: "1024x1024"})
		require.NoError(t, err, name)
		assert.Equal(t, []byte("png"), data, name)
	}
}

func TestProvidersClassifyRateLimit(t *testing.T) {
	srv := imageServer(t, http.StatusTooManyRequests, map[string]string{"Retry-After": "2"}, errorBody)

	for name, p := range providersFor(srv.URL) {
		_, err := p.Generate(context.Background(), generation.Request{Prompt: "cat", Model: "gpt-image-1"})
		var rl *generation.RateLimitError
		require.True(t, errors.As(err, &rl), "%s: %v", name, err)
		assert.Equal(t, 2*time.Second, rl.RetryAfter, name)
	}
}

func TestProvidersClassifyServerError(t *testing.T) {
	srv := imageServer(t, http.StatusBadGateway, nil, errorBody)

	for name, p := range providersFor(srv.URL) {
		_, err := p.Generate(context.Background(), generation.Request{Prompt: "cat", Model: "gpt-image-1"})
		var pe *generation.ProviderError
		require.True(t, errors.As(err, &pe), "%s: %v", name, err)
		assert.Equal(t, http.StatusBadGateway, pe.StatusCode, name)
	}
}

func TestProvidersClassifyClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity} {
		srv := imageServer(t, status, nil, errorBody)

		for name, p := range providersFor(srv.URL) {
			_, err := p.Generate(context.Background(), generation.Request{Prompt: "cat", Model: "gpt-image-1"})
			var pe *generation.ProviderError
			require.True(t, errors.As(err, &pe), "%s %d: %v", name, status, err)
			assert.Equal(t, status, pe.StatusCode, name)

			var rl *generation.RateLimitError
			assert.False(t, errors.As(err, &rl), name)
		}
	}
}

func TestClassify(t *testing.T) {
	cause := errors.New("boom")

	var rl *generation.RateLimitError
	require.True(t, errors.As(classify(http.StatusTooManyRequests, time.Second, cause), &rl))
	assert.Equal(t, time.Second, rl.RetryAfter)

	for _, status := range []int{0, http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusInternalServerError} {
		var pe *generation.ProviderError
		require.True(t, errors.As(classify(status, 0, cause), &pe), status)
		assert.Equal(t, status, pe.StatusCode)
		assert.ErrorIs(t, pe, cause)
	}
}

func TestProvidersEmptyResponse(t *testing.T) {
	srv := imageServer(t, http.StatusOK, nil, `{"created":1,"data":[]}`)

	for name, p := range providersFor(srv.URL) {
		_, err := p.Generate(context.Background(), generation.Request{Prompt: "cat", Model: "gpt-image-1"})
		assert.ErrorIs(t, err, generation.ErrEmptyResponse, name)
	}
}

func TestFactory(t *testing.T) {
	factory := NewFactory(&config.OpenAIConfig{})

	p, err := factory("", "sk")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	p, err = factory(ProviderOpenAICompat, "sk")
	require.NoError(t, err)
	assert.IsType(t, &CompatProvider{}, p)

	_, err = factory("midjourney", "sk")
	assert.ErrorIs(t, err, generation.ErrUnknownProvider)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Second, parseRetryAfter("1", now))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(time.RFC1123), now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter("", now))
}
