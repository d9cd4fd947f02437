package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"
)

const chunkSize = 64 * 1024

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Sha256Hash returns the hex SHA-256 digest of data.
func Sha256Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Sha256Reader streams r through SHA-256 in fixed-size chunks.
func Sha256Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, chunkSize))
	if err != nil {
		return "", n, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func Sha256File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	return Sha256Reader(f)
}
