package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PromptsFileStatus string

const (
	PromptsFileStatusPending    PromptsFileStatus = "pending"
	PromptsFileStatusProcessing PromptsFileStatus = "processing"
	PromptsFileStatusCompleted  PromptsFileStatus = "completed"
)

// PromptsFile is a newline-delimited prompt list that jobs are created from.
type PromptsFile struct {
	bun.BaseModel `bun:"table:prompts_files"`

	ID          int64             `bun:",pk,autoincrement" json:"id"`
	Filename    string            `bun:",notnull" json:"filename"`
	SHA256      string            `bun:"sha256,notnull" json:"sha256"`
	Path        string            `bun:",notnull" json:"-"`
	PromptCount int               `bun:",notnull,default:0" json:"prompt_count"`
	Status      PromptsFileStatus `bun:",notnull" json:"status"`
	UploadedAt  time.Time         `bun:",nullzero,notnull,default:current_timestamp" json:"uploaded_at"`
}

// GeneratedPromptFile is the output of the prompt authoring step, waiting to
// be queued and promoted into a PromptsFile.
type GeneratedPromptFile struct {
	bun.BaseModel `bun:"table:generated_prompt_files"`

	ID          int64     `bun:",pk,autoincrement" json:"id"`
	Filename    string    `bun:",notnull" json:"filename"`
	Path        string    `bun:",notnull" json:"-"`
	UserInput   string    `bun:",nullzero" json:"user_input,omitempty"`
	PromptCount int       `bun:",notnull,default:0" json:"prompt_count"`
	CreatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
}
