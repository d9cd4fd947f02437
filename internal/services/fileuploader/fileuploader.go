package fileuploader

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/sticker-server/internal/services/filestorage"
	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

// Result is delivered once per submitted upload.
type Result struct {
	Source string
	URL    string
	Err    error
}

// Uploader copies local files to a remote FileStorage on a bounded pool of
// workers.
type Uploader struct {
	wp          *workerpool.WorkerPool
	filestorage filestorage.FileStorage
	logger      *zap.Logger
}

func NewFileUploader(filestorage filestorage.FileStorage, maxWorkers int, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Uploader{
		wp:          workerpool.New(maxWorkers),
		filestorage: filestorage,
		logger:      logger,
	}
}

// Stop waits for queued uploads to finish.
func (w *Uploader) Stop() {
	w.wp.StopWait()
}

// UploadFile mirrors the file at path under folder. done, when set, is called
// from the worker goroutine.
func (w *Uploader) UploadFile(ctx context.Context, path, folder string, done func(Result)) {
	w.wp.Submit(func() {
		result := w.uploadFile(ctx, path, folder)
		if result.Err != nil {
			w.logger.Error("failed to upload file", zap.String("path", path), zap.Error(result.Err))
		}
		if done != nil {
			done(result)
		}
	})
}

func (w *Uploader) uploadFile(ctx context.Context, path, folder string) Result {
	result := Result{Source: path}
	if w.filestorage == nil {
		return result
	}

	file, err := os.Open(path)
	if err != nil {
		result.Err = err
		return result
	}
	defer file.Close()

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	result.URL, result.Err = w.filestorage.Upload(ctx, filestorage.FileInfo{
		Folder:    folder,
		Name:      strings.TrimSuffix(base, ext),
		Extension: ext,
		Content:   file,
		Kind:      filestorage.FileKindStream,
	})

	return result
}
