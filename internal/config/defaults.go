package config

import "errors"

const (
	DefaultStickerHome = "~/.sticker-server"
	DefaultPort        = 8881
	DefaultHost        = "localhost"
)

const (
	DefaultProvider      = "openai"
	DefaultModel         = "gpt-image-1"
	DefaultImageSize     = "1024x1024"
	DefaultImageQuality  = "auto"
	DefaultInitialDelay  = 5.0
	DefaultMinDelay      = 2.0
	DefaultMaxDelay      = 120.0
	DefaultMaxAttempts   = 3
	DefaultBasePrompt    = "flat vector or doodle style with clean lines no shading or photorealism, " +
		"transparent background PNG-ready for cutting, " +
		"isolated composition not touching edges centered within canvas, " +
		"bold outlines for clear cut lines, " +
		"high contrast color palette 2-4 tones, " +
		"cute expressive or aesthetic shape that looks great as a sticker, " +
		"no drop shadows no textures outside the design"
)

// viper key -> directory name under the sticker home
var dataDirs = map[string]string{
	"images_dir":            "images",
	"archives_dir":          "archives",
	"prompts_dir":           "prompts",
	"generated_prompts_dir": "generated_prompts",
}

var (
	ErrStickerHomeNotSet       = errors.New("sticker home directory is not set")
	ErrStickerHomeExpandFailed = errors.New("failed to expand sticker home directory")
)
