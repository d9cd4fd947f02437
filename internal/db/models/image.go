package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Image struct {
	bun.BaseModel `bun:"table:images"`

	ID         int64     `bun:",pk,autoincrement" json:"id"`
	JobID      int64     `bun:",notnull" json:"job_id"`
	Path       string    `bun:",notnull" json:"-"`
	Filename   string    `bun:",notnull" json:"filename"`
	PromptText string    `bun:",notnull" json:"prompt_text"`
	Width      int       `bun:",notnull,default:0" json:"width"`
	Height     int       `bun:",notnull,default:0" json:"height"`
	MimeType   string    `bun:",nullzero" json:"mime_type,omitempty"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
}
