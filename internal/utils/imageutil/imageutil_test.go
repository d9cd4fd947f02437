package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspectPNG(t *testing.T) {
	info, err := Inspect(encodePNG(t, 12, 7))
	require.NoError(t, err)
	assert.Equal(t, 12, info.Width)
	assert.Equal(t, 7, info.Height)
	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, ".png", info.Extension)
}

func TestInspectRejectsText(t *testing.T) {
	_, err := Inspect([]byte("not an image at all"))
	assert.Error(t, err)
}
