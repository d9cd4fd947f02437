package generation

import (
	"fmt"
	"regexp"
	"strings"
)

const maxSlugRunes = 50

var nonSlugChars = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Slugify lower-cases the prompt, collapses every run of characters that are
// not letters or digits into a single dash and caps the result at 50 runes.
// The cut is taken as is, so a slug may end in a dash.
func Slugify(prompt string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(prompt), "-")
	slug = strings.Trim(slug, "-")

	if runes := []rune(slug); len(runes) > maxSlugRunes {
		slug = string(runes[:maxSlugRunes])
	}

	if slug == "" {
		return "image"
	}

	return slug
}

// ImageFilename is the on-disk name for the image generated from the
// index-th prompt (1-based). The zero-padded prefix keeps names sorted.
func ImageFilename(index int, prompt, ext string) string {
	if ext == "" {
		ext = ".png"
	}

	return fmt.Sprintf("%03d-%s%s", index, Slugify(prompt), ext)
}

// EnhancePrompt appends the style prefix to a user prompt.
func EnhancePrompt(prompt, stylePrefix string) string {
	stylePrefix = strings.TrimSpace(stylePrefix)
	if stylePrefix == "" {
		return prompt
	}

	return prompt + " — " + stylePrefix
}
