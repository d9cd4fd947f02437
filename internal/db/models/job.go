package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

func (s JobStatus) IsCancelable() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

type Job struct {
	bun.BaseModel `bun:"table:jobs"`

	ID                 int64        `bun:",pk,autoincrement" json:"id"`
	Status             JobStatus    `bun:",notnull" json:"status"`
	PromptsFileID      int64        `bun:",nullzero" json:"prompts_file_id,omitempty"`
	BasePromptSnapshot string       `bun:",notnull,default:''" json:"base_prompt_snapshot"`
	ConfigSnapshot     []byte       `bun:",nullzero" json:"-"`
	TotalPrompts       int          `bun:",notnull,default:0" json:"total_prompts"`
	SkippedPrompts     int          `bun:",notnull,default:0" json:"skipped_prompts"`
	StartedAt          time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"started_at"`
	FinishedAt         bun.NullTime `bun:",nullzero" json:"finished_at"`

	ZipPath        string       `bun:",nullzero" json:"-"`
	ZipSizeBytes   int64        `bun:",nullzero" json:"zip_size_bytes,omitempty"`
	ZipSHA256      string       `bun:"zip_sha256,nullzero" json:"zip_sha256,omitempty"`
	ZipFingerprint string       `bun:",nullzero" json:"-"`
	ZipBuiltAt     bun.NullTime `bun:",nullzero" json:"zip_built_at"`

	PromptsFile *PromptsFile `bun:"rel:belongs-to,join:prompts_file_id=id" json:"-"`
}

// ConfigSnapshot is the configuration frozen onto a job when it is created.
// Runs only ever read the snapshot, never live configuration.
type ConfigSnapshot struct {
	BasePrompt string `msgpack:"base_prompt"`
	APIKey     string `msgpack:"api_key"`
	Provider   string `msgpack:"provider"`
	Model      string `msgpack:"model"`
	Size       string `msgpack:"size"`
	Quality    string `msgpack:"quality"`
}

func (s *ConfigSnapshot) Encode() ([]byte, error) {
	return msgpack.Marshal(s)
}

func DecodeConfigSnapshot(data []byte) (*ConfigSnapshot, error) {
	snapshot := &ConfigSnapshot{}
	if len(data) == 0 {
		return snapshot, nil
	}

	if err := msgpack.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode config snapshot: %w", err)
	}

	return snapshot, nil
}
