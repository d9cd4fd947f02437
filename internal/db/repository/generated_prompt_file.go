package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IGeneratedPromptFileRepository interface {
	Repository[models.GeneratedPromptFile]
	WithTx(tx *bun.Tx) IGeneratedPromptFileRepository
	List(ctx context.Context) ([]models.GeneratedPromptFile, error)
}

type GeneratedPromptFileRepository struct {
	db bun.IDB
}

func NewGeneratedPromptFileRepository(db bun.IDB) IGeneratedPromptFileRepository {
	return &GeneratedPromptFileRepository{db: db}
}

func (r *GeneratedPromptFileRepository) Create(ctx context.Context, file *models.GeneratedPromptFile) (*models.GeneratedPromptFile, error) {
	if file == nil {
		return nil, fmt.Errorf("generated prompt file model is nil")
	}

	if err := r.db.NewInsert().Model(file).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return file, nil
}

func (r *GeneratedPromptFileRepository) GetByID(ctx context.Context, id int64) (*models.GeneratedPromptFile, error) {
	var file models.GeneratedPromptFile
	if err := r.db.NewSelect().Model(&file).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &file, nil
}

func (r *GeneratedPromptFileRepository) List(ctx context.Context) ([]models.GeneratedPromptFile, error) {
	var files []models.GeneratedPromptFile
	if err := r.db.NewSelect().Model(&files).OrderExpr("id DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return files, nil
}

func (r *GeneratedPromptFileRepository) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().Model((*models.GeneratedPromptFile)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *GeneratedPromptFileRepository) WithTx(tx *bun.Tx) IGeneratedPromptFileRepository {
	return &GeneratedPromptFileRepository{db: tx}
}
