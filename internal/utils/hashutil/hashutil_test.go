package hashutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256FileMatchesInMemoryDigest(t *testing.T) {
	data := []byte(strings.Repeat("sticker", 20000))
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sum, size, err := Sha256File(path)
	require.NoError(t, err)
	assert.Equal(t, Sha256Hash(data), sum)
	assert.Equal(t, int64(len(data)), size)
}

func TestBlake3HashIsStable(t *testing.T) {
	assert.Equal(t, Blake3Hash([]byte("a")), Blake3Hash([]byte("a")))
	assert.NotEqual(t, Blake3Hash([]byte("a")), Blake3Hash([]byte("b")))
	assert.Len(t, Blake3Hash(nil), 64)
}
