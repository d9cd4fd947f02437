package models

import (
	"time"

	"github.com/uptrace/bun"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
)

type QueueEntry struct {
	bun.BaseModel `bun:"table:prompt_queue"`

	ID              int64        `bun:",pk,autoincrement" json:"id"`
	GeneratedFileID int64        `bun:",notnull,unique" json:"generated_file_id"`
	Status          QueueStatus  `bun:",notnull" json:"status"`
	QueuedAt        time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"queued_at"`
	StartedAt       bun.NullTime `bun:",nullzero" json:"started_at"`
	CompletedAt     bun.NullTime `bun:",nullzero" json:"completed_at"`
	PromptsFileID   int64        `bun:",nullzero" json:"prompts_file_id,omitempty"`

	GeneratedFile *GeneratedPromptFile `bun:"rel:belongs-to,join:generated_file_id=id" json:"generated_file,omitempty"`
}
