package filestorage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cozy-creator/sticker-server/internal/config"
)

type FileKind int

const (
	FileKindBytes FileKind = iota
	FileKindStream
)

var (
	ErrUnknownFileKind = errors.New("unknown file kind")
	ErrInvalidName     = errors.New("invalid file name")
)

// FileInfo describes one file to store. Content is a []byte for
// FileKindBytes and an io.Reader for FileKindStream.
type FileInfo struct {
	Folder    string
	Name      string
	Extension string
	Content   any
	Kind      FileKind
}

type FileStorage interface {
	// Upload stores the file and returns where it can be read from: an
	// absolute path for local storage, a public URL for S3.
	Upload(ctx context.Context, file FileInfo) (string, error)
	Remove(ctx context.Context, key string) error
}

func NewFileInfo(folder, name, extension string, content []byte) FileInfo {
	return FileInfo{
		Folder:    folder,
		Name:      name,
		Extension: extension,
		Content:   content,
		Kind:      FileKindBytes,
	}
}

// Key is the slash separated object key of the file relative to the storage
// root.
func (f FileInfo) Key() (string, error) {
	name := f.Name + f.Extension
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	folder := strings.Trim(path.Clean("/"+f.Folder), "/")
	if folder == "" {
		return name, nil
	}

	return folder + "/" + name, nil
}

// NewMirrorStorage returns the S3 mirror when one is configured, nil otherwise.
func NewMirrorStorage(cfg *config.Config) (FileStorage, error) {
	if cfg.S3 == nil || cfg.S3.Bucket == "" {
		return nil, nil
	}

	storage, err := NewS3FileStorage(cfg)
	if err != nil {
		return nil, err
	}

	return storage, nil
}
