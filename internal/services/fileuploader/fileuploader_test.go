package fileuploader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cozy-creator/sticker-server/internal/services/filestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memoryStorage) Upload(ctx context.Context, file filestorage.FileInfo) (string, error) {
	key, err := file.Key()
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(file.Content.(io.Reader))
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryStorage) Remove(ctx context.Context, key string) error {
	return nil
}

func TestUploadFileMirrorsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "12.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip-bytes"), 0o644))

	storage := &memoryStorage{files: map[string][]byte{}}
	uploader := NewFileUploader(storage, 2, nil)

	results := make(chan Result, 1)
	uploader.UploadFile(context.Background(), path, "archives", func(r Result) { results <- r })
	uploader.Stop()

	result := <-results
	require.NoError(t, result.Err)
	assert.Equal(t, "https://cdn.example.com/archives/12.zip", result.URL)
	assert.Equal(t, []byte("zip-bytes"), storage.files["archives/12.zip"])
}

func TestUploadMissingFileReportsError(t *testing.T) {
	uploader := NewFileUploader(&memoryStorage{files: map[string][]byte{}}, 1, nil)

	results := make(chan Result, 1)
	uploader.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.zip"), "", func(r Result) { results <- r })
	uploader.Stop()

	assert.Error(t, (<-results).Err)
}
