package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type LocalFileStorage struct {
	root string
}

func NewLocalFileStorage(root string) (*LocalFileStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is not set")
	}

	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, err
	}

	return &LocalFileStorage{root: root}, nil
}

func (u *LocalFileStorage) Root() string {
	return u.root
}

func (u *LocalFileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	key, err := file.Key()
	if err != nil {
		return "", err
	}

	filedest := filepath.Join(u.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(filedest), os.ModePerm); err != nil {
		return "", err
	}

	switch file.Kind {
	case FileKindBytes:
		content, ok := file.Content.([]byte)
		if !ok {
			return "", ErrUnknownFileKind
		}
		if err := writeStreamFile(filedest, bytes.NewReader(content), 0o644); err != nil {
			return "", err
		}
	case FileKindStream:
		content, ok := file.Content.(io.Reader)
		if !ok {
			return "", ErrUnknownFileKind
		}
		if err := writeStreamFile(filedest, content, 0o644); err != nil {
			return "", err
		}
	default:
		return "", ErrUnknownFileKind
	}

	return filedest, nil
}

// Remove deletes a file by absolute path or root relative key. Missing files
// are not an error.
func (u *LocalFileStorage) Remove(ctx context.Context, key string) error {
	target := key
	if !filepath.IsAbs(target) {
		target = filepath.Join(u.root, filepath.FromSlash(key))
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// RemoveFolder deletes a folder under the root and everything in it.
func (u *LocalFileStorage) RemoveFolder(folder string) error {
	clean := filepath.Clean(filepath.Join(u.root, folder))
	if clean == filepath.Clean(u.root) || !strings.HasPrefix(clean, filepath.Clean(u.root)+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to remove %q", folder)
	}

	return os.RemoveAll(clean)
}

// writeStreamFile writes to a temp file in the destination directory and
// renames it into place, so readers never observe a partial file.
func writeStreamFile(filedest string, content io.Reader, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filedest), "."+filepath.Base(filedest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save content to file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filedest)
}
