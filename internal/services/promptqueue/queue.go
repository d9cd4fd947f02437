package promptqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/prompts"
	"go.uber.org/zap"
)

const (
	ReasonRemoved       = "removed"
	ReasonMissingRecord = "generated_file_missing"
	ReasonMissingFile   = "source_file_missing"
	ReasonInvalidFile   = "source_file_invalid"
)

var (
	ErrEntryProcessing       = errors.New("queue entry is being processed")
	ErrEntryCompleted        = errors.New("queue entry already completed")
	ErrQueueEntryNotFound    = errors.New("queue entry not found")
	ErrGeneratedFileNotFound = errors.New("generated prompt file not found")
)

type EnqueueResult struct {
	Entry         *models.QueueEntry `json:"entry"`
	AlreadyQueued bool               `json:"already_queued"`
}

// PromotedFunc is called with every freshly promoted prompts file while the
// processor still holds its lock.
type PromotedFunc func(ctx context.Context, file *models.PromptsFile) error

// Processor moves generated prompt files into the active prompts directory,
// one at a time and only while no prompts file is being processed.
type Processor struct {
	queue     repository.IQueueRepository
	generated repository.IGeneratedPromptFileRepository
	files     repository.IPromptsFileRepository
	prompts   *prompts.Service
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	onPromoted PromotedFunc
}

func NewProcessor(
	queue repository.IQueueRepository,
	generated repository.IGeneratedPromptFileRepository,
	files repository.IPromptsFileRepository,
	promptsService *prompts.Service,
	publisher events.Publisher,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		queue:     queue,
		generated: generated,
		files:     files,
		prompts:   promptsService,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// OnPromoted registers the hook run after each promotion.
func (p *Processor) OnPromoted(fn PromotedFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onPromoted = fn
}

// Enqueue adds the generated file to the queue once and then tries to promote
// the oldest pending entry.
func (p *Processor) Enqueue(ctx context.Context, generatedFileID int64) (*EnqueueResult, error) {
	result, err := p.enqueue(ctx, generatedFileID)
	if err != nil {
		return nil, err
	}

	if _, err := p.ProcessNext(ctx); err != nil {
		p.logger.Error("failed to process queue after enqueue", zap.Int64("queue_id", result.Entry.ID), zap.Error(err))
	}

	if entry, err := p.queue.GetByID(ctx, result.Entry.ID); err == nil {
		result.Entry = entry
	}

	return result, nil
}

func (p *Processor) enqueue(ctx context.Context, generatedFileID int64) (*EnqueueResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.generated.GetByID(ctx, generatedFileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGeneratedFileNotFound
		}
		return nil, err
	}

	existing, err := p.queue.GetByGeneratedFileID(ctx, generatedFileID)
	if err == nil {
		return &EnqueueResult{Entry: existing, AlreadyQueued: true}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	entry, err := p.queue.Create(ctx, &models.QueueEntry{
		GeneratedFileID: generatedFileID,
		Status:          models.QueueStatusPending,
		QueuedAt:        p.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue generated file %d: %w", generatedFileID, err)
	}

	p.logger.Info("queued generated prompt file", zap.Int64("queue_id", entry.ID), zap.Int64("generated_file_id", generatedFileID))
	p.publishStatus(entry)

	return &EnqueueResult{Entry: entry}, nil
}

// ProcessNext promotes the oldest pending entry. It reports whether a prompts
// file was created.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	busy, err := p.files.HasProcessing(ctx)
	if err != nil {
		return false, err
	}
	if busy {
		return false, nil
	}

	entry, err := p.queue.OldestPending(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	source, err := p.generated.GetByID(ctx, entry.GeneratedFileID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, p.drop(ctx, entry, ReasonMissingRecord)
	}
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(source.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, p.drop(ctx, entry, ReasonMissingFile)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read generated prompt file: %w", err)
	}

	claimed, err := p.queue.MarkProcessing(ctx, entry.ID, p.now().UTC())
	if err != nil || !claimed {
		return false, err
	}

	file, err := p.prompts.Store(ctx, source.Filename, data)
	if errors.Is(err, prompts.ErrNoPrompts) || errors.Is(err, prompts.ErrInvalidEncoding) {
		return false, p.drop(ctx, entry, ReasonInvalidFile)
	}
	if err != nil {
		if resetErr := p.queue.MarkPending(ctx, entry.ID); resetErr != nil {
			p.logger.Error("failed to reset queue entry", zap.Int64("queue_id", entry.ID), zap.Error(resetErr))
		}
		return false, fmt.Errorf("failed to promote queue entry %d: %w", entry.ID, err)
	}

	if err := p.queue.MarkCompleted(ctx, entry.ID, file.ID, p.now().UTC()); err != nil {
		return false, err
	}

	entry.Status = models.QueueStatusCompleted
	entry.PromptsFileID = file.ID
	p.publishStatus(entry)
	p.logger.Info("promoted generated prompt file",
		zap.Int64("queue_id", entry.ID),
		zap.Int64("prompts_file_id", file.ID),
		zap.Int("prompts", file.PromptCount),
	)

	if p.onPromoted != nil {
		if err := p.onPromoted(ctx, file); err != nil {
			p.logger.Error("failed to start job for promoted file", zap.Int64("prompts_file_id", file.ID), zap.Error(err))
		}
	}

	return true, nil
}

// Remove deletes a queue entry that is still pending. Entries being promoted
// or already promoted stay as they are.
func (p *Processor) Remove(ctx context.Context, entryID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, err := p.queue.GetByID(ctx, entryID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrQueueEntryNotFound
	}
	if err != nil {
		return err
	}

	switch entry.Status {
	case models.QueueStatusPending:
	case models.QueueStatusProcessing:
		return ErrEntryProcessing
	case models.QueueStatusCompleted:
		return ErrEntryCompleted
	default:
		return fmt.Errorf("queue entry %d has unknown status %q", entry.ID, entry.Status)
	}

	return p.drop(ctx, entry, ReasonRemoved)
}

func (p *Processor) List(ctx context.Context) ([]models.QueueEntry, error) {
	return p.queue.List(ctx)
}

func (p *Processor) drop(ctx context.Context, entry *models.QueueEntry, reason string) error {
	if err := p.queue.DeleteByID(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", entry.ID, err)
	}

	if reason != ReasonRemoved {
		p.logger.Warn("dropped orphaned queue entry", zap.Int64("queue_id", entry.ID), zap.String("reason", reason))
	}
	p.events.Publish(events.TypeQueueItemRemoved, events.Payload{
		"queue_id": entry.ID,
		"reason":   reason,
	})

	return nil
}

func (p *Processor) publishStatus(entry *models.QueueEntry) {
	payload := events.Payload{
		"queue_id":          entry.ID,
		"generated_file_id": entry.GeneratedFileID,
		"status":            entry.Status,
	}
	if entry.PromptsFileID != 0 {
		payload["prompts_file_id"] = entry.PromptsFileID
	}

	p.events.Publish(events.TypeQueueUpdated, payload)
}
