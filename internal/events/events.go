package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeJobCreated         = "job_created"
	TypeJobUpdated         = "job_updated"
	TypeImageCreated       = "image_created"
	TypePromptSkipped      = "prompt_skipped"
	TypeQueueUpdated       = "queue_updated"
	TypeQueueItemRemoved   = "queue_item_removed"
	TypePromptsFileCreated = "prompts_file_created"
	TypeArchivePublished   = "archive_published"
	TypeJobDeleted         = "job_deleted"
	TypeImagesPurged       = "images_purged"
)

type Event struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// Publisher is the write side of the hub. Services depend on it rather than
// on *Hub so tests can record events.
type Publisher interface {
	Publish(eventType string, data any)
}

type Payload map[string]any
