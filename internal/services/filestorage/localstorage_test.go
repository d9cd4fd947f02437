package filestorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploadBytesAndStream(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.Upload(ctx, NewFileInfo("7", "001-cat", ".png", []byte("png-bytes")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "7", "001-cat.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	path, err = store.Upload(ctx, FileInfo{Name: "notes", Extension: ".txt", Content: strings.NewReader("hello"), Kind: FileKindStream})
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestLocalUploadRejectsTraversal(t *testing.T) {
	store, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), NewFileInfo("", "../evil", ".png", []byte("x")))
	assert.ErrorIs(t, err, ErrInvalidName)

	key, err := NewFileInfo("../../etc", "a", ".txt", nil).Key()
	require.NoError(t, err)
	assert.Equal(t, "etc/a.txt", key)
}

func TestLocalRemove(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.Upload(ctx, NewFileInfo("1", "a", ".png", []byte("x")))
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, path))
	require.NoError(t, store.Remove(ctx, path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.RemoveFolder("1"))
	assert.Error(t, store.RemoveFolder("."))
	assert.Error(t, store.RemoveFolder(".."))
}
