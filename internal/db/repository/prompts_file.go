package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IPromptsFileRepository interface {
	Repository[models.PromptsFile]
	WithTx(tx *bun.Tx) IPromptsFileRepository
	List(ctx context.Context) ([]models.PromptsFile, error)
	HasProcessing(ctx context.Context) (bool, error)
	ClaimProcessing(ctx context.Context, id int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status models.PromptsFileStatus) error
}

type PromptsFileRepository struct {
	db bun.IDB
}

func NewPromptsFileRepository(db bun.IDB) IPromptsFileRepository {
	return &PromptsFileRepository{db: db}
}

func (r *PromptsFileRepository) Create(ctx context.Context, file *models.PromptsFile) (*models.PromptsFile, error) {
	if file == nil {
		return nil, fmt.Errorf("prompts file model is nil")
	}

	if err := r.db.NewInsert().Model(file).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return file, nil
}

func (r *PromptsFileRepository) GetByID(ctx context.Context, id int64) (*models.PromptsFile, error) {
	var file models.PromptsFile
	if err := r.db.NewSelect().Model(&file).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &file, nil
}

func (r *PromptsFileRepository) List(ctx context.Context) ([]models.PromptsFile, error) {
	var files []models.PromptsFile
	if err := r.db.NewSelect().Model(&files).OrderExpr("id DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return files, nil
}

func (r *PromptsFileRepository) HasProcessing(ctx context.Context) (bool, error) {
	return r.db.NewSelect().
		Model((*models.PromptsFile)(nil)).
		Where("status = ?", models.PromptsFileStatusProcessing).
		Exists(ctx)
}

// ClaimProcessing marks the file processing only when no file currently holds
// that status. The check and the write are one statement, and the partial
// unique index on status rejects any concurrent second claim.
func (r *PromptsFileRepository) ClaimProcessing(ctx context.Context, id int64) (bool, error) {
	busy := r.db.NewSelect().
		Model((*models.PromptsFile)(nil)).
		ColumnExpr("1").
		Where("status = ?", models.PromptsFileStatusProcessing)

	res, err := r.db.NewUpdate().
		Model((*models.PromptsFile)(nil)).
		Set("status = ?", models.PromptsFileStatusProcessing).
		Where("id = ?", id).
		Where("status = ?", models.PromptsFileStatusPending).
		Where("NOT EXISTS (?)", busy).
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

func (r *PromptsFileRepository) UpdateStatus(ctx context.Context, id int64, status models.PromptsFileStatus) error {
	_, err := r.db.NewUpdate().
		Model((*models.PromptsFile)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *PromptsFileRepository) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().Model((*models.PromptsFile)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *PromptsFileRepository) WithTx(tx *bun.Tx) IPromptsFileRepository {
	return &PromptsFileRepository{db: tx}
}
