package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IQueueRepository interface {
	Repository[models.QueueEntry]
	WithTx(tx *bun.Tx) IQueueRepository
	GetByGeneratedFileID(ctx context.Context, generatedFileID int64) (*models.QueueEntry, error)
	OldestPending(ctx context.Context) (*models.QueueEntry, error)
	List(ctx context.Context) ([]models.QueueEntry, error)
	MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkPending(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id, promptsFileID int64, at time.Time) error
}

type QueueRepository struct {
	db bun.IDB
}

func NewQueueRepository(db bun.IDB) IQueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Create(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, error) {
	if entry == nil {
		return nil, fmt.Errorf("queue entry model is nil")
	}

	if err := r.db.NewInsert().Model(entry).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *QueueRepository) GetByID(ctx context.Context, id int64) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := r.db.NewSelect().Model(&entry).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &entry, nil
}

func (r *QueueRepository) GetByGeneratedFileID(ctx context.Context, generatedFileID int64) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := r.db.NewSelect().Model(&entry).Where("generated_file_id = ?", generatedFileID).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &entry, nil
}

func (r *QueueRepository) OldestPending(ctx context.Context) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.NewSelect().
		Model(&entry).
		Where("status = ?", models.QueueStatusPending).
		OrderExpr("queued_at ASC, id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}

	return &entry, nil
}

func (r *QueueRepository) List(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.NewSelect().
		Model(&entries).
		Relation("GeneratedFile").
		OrderExpr("?TableAlias.queued_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// MarkProcessing moves a pending entry to processing. It reports false when
// the entry is no longer pending.
func (r *QueueRepository) MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.QueueEntry)(nil)).
		Set("status = ?", models.QueueStatusProcessing).
		Set("started_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.QueueStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *QueueRepository) MarkPending(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.QueueEntry)(nil)).
		Set("status = ?", models.QueueStatusPending).
		Set("started_at = NULL").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *QueueRepository) MarkCompleted(ctx context.Context, id, promptsFileID int64, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.QueueEntry)(nil)).
		Set("status = ?", models.QueueStatusCompleted).
		Set("prompts_file_id = ?", promptsFileID).
		Set("completed_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *QueueRepository) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().Model((*models.QueueEntry)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *QueueRepository) WithTx(tx *bun.Tx) IQueueRepository {
	return &QueueRepository{db: tx}
}
