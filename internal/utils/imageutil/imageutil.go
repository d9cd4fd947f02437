package imageutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Width     int
	Height    int
	MimeType  string
	Extension string
}

// Inspect sniffs the content type of data and reads its dimensions from the
// image header.
func Inspect(data []byte) (*Info, error) {
	mtype := mimetype.Detect(data)
	if !isImage(mtype) {
		return nil, fmt.Errorf("unsupported content type: %s", mtype.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	return &Info{
		Width:     cfg.Width,
		Height:    cfg.Height,
		MimeType:  mtype.String(),
		Extension: mtype.Extension(),
	}, nil
}

func isImage(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("image/png") || m.Is("image/jpeg") || m.Is("image/webp") || m.Is("image/gif") || m.Is("image/bmp") {
			return true
		}
	}

	return false
}
