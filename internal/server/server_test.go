package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cozy-creator/sticker-server/internal/app"
	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/db/dbtest"
	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testDriver struct {
	db *bun.DB
}

func (d testDriver) GetDB() *bun.DB {
	return d.db
}

type pngProvider struct {
	data []byte
}

func (p pngProvider) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	return p.data, nil
}

func newTestServer(t *testing.T) (*app.App, http.Handler) {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		Host:                "127.0.0.1",
		Port:                0,
		Environment:         "test",
		ImagesDir:           root + "/images",
		ArchivesDir:         root + "/archives",
		PromptsDir:          root + "/prompts",
		GeneratedPromptsDir: root + "/generated",
		OpenAI:              &config.OpenAIConfig{APIKey: "sk-test-abcdefgh"},
		Queue:               &config.QueueConfig{AutoStart: true},
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	provider := pngProvider{data: buf.Bytes()}

	a, err := app.NewApp(cfg,
		app.WithDB(testDriver{db: dbtest.Open(t)}),
		app.WithDBInitialization(),
		app.WithProviderFactory(func(name, apiKey string) (generation.Provider, error) {
			return provider, nil
		}),
		app.WithServices(),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	s, err := NewServer(cfg)
	require.NoError(t, err)
	s.SetupRoutes(a)

	return a, s.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	a, h := newTestServer(t)

	w := do(t, h, uploadRequest(t, "/api/prompts", "cats.txt", "a cat\n"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var file models.PromptsFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, 1, file.PromptCount)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"prompts_file_id":`+itoa(file.ID)+`}`))
	req.Header.Set("Content-Type", "application/json")
	w = do(t, h, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))

	a.Jobs.Wait()

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+itoa(job.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Status     models.JobStatus `json:"status"`
		ImageCount int              `json:"image_count"`
		ZipReady   bool             `json:"zip_ready"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, models.JobStatusSucceeded, summary.Status)
	assert.Equal(t, 1, summary.ImageCount)
	assert.True(t, summary.ZipReady)

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+itoa(job.ID)+"/zip", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	assert.NotEmpty(t, etag)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "job_"+itoa(job.ID)+".zip")

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+itoa(job.ID)+"/zip", nil)
	req.Header.Set("If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, do(t, h, req).Code)

	w = do(t, h, httptest.NewRequest(http.MethodHead, "/api/jobs/"+itoa(job.ID)+"/zip", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, etag, w.Header().Get("ETag"))

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/api/zips/latest", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/jobs/"+itoa(job.ID)+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRejectsNonText(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, uploadRequest(t, "/api/prompts", "cats.csv", "a cat"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteImagesRequiresConfirmation(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, httptest.NewRequest(http.MethodDelete, "/api/images", nil))
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/images", nil)
	req.Header.Set("X-Confirm", "delete-all")
	w = do(t, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":0}`, w.Body.String())

	w = do(t, h, httptest.NewRequest(http.MethodHead, "/api/zips/all", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigMasksCredential(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"api_key":"sk-t********efgh"`)
	assert.NotContains(t, w.Body.String(), "sk-test-abcdefgh")

	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"base_prompt":"watercolor"}`))
	req.Header.Set("Content-Type", "application/json")
	w = do(t, h, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"base_prompt":"watercolor"`)
}

func TestQueueAutoStartsJob(t *testing.T) {
	a, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/prompts/generated",
		strings.NewReader(`{"filename":"ocean","prompts":["whale"],"enqueue":true}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, h, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	a.Jobs.Wait()

	jobs, err := a.Jobs.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusSucceeded, jobs[0].Status)

	w = do(t, h, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestEventStream(t *testing.T) {
	a, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	a.Events.Publish(events.TypeJobUpdated, events.Payload{"job_id": 7})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	assert.True(t, strings.HasPrefix(lines[0], "id: "))
	assert.Equal(t, "event: job_updated", lines[1])
	assert.Contains(t, lines[2], `"job_id":7`)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
