package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IImageRepository interface {
	Repository[models.Image]
	WithTx(tx *bun.Tx) IImageRepository
	List(ctx context.Context, limit, offset int) ([]models.Image, error)
	ListByJobID(ctx context.Context, jobID int64) ([]models.Image, error)
	ListAll(ctx context.Context) ([]models.Image, error)
	CountByJobID(ctx context.Context, jobID int64) (int, error)
	CountByJobIDs(ctx context.Context, jobIDs []int64) (map[int64]int, error)
	DeleteByJobID(ctx context.Context, jobID int64) error
	DeleteAll(ctx context.Context) error
}

type ImageRepository struct {
	db bun.IDB
}

func NewImageRepository(db bun.IDB) IImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) Create(ctx context.Context, image *models.Image) (*models.Image, error) {
	if image == nil {
		return nil, fmt.Errorf("image model is nil")
	}

	if err := r.db.NewInsert().Model(image).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return image, nil
}

func (r *ImageRepository) GetByID(ctx context.Context, id int64) (*models.Image, error) {
	var image models.Image
	if err := r.db.NewSelect().Model(&image).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &image, nil
}

func (r *ImageRepository) List(ctx context.Context, limit, offset int) ([]models.Image, error) {
	var images []models.Image
	q := r.db.NewSelect().Model(&images).OrderExpr("id DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return images, nil
}

func (r *ImageRepository) ListByJobID(ctx context.Context, jobID int64) ([]models.Image, error) {
	var images []models.Image
	if err := r.db.NewSelect().Model(&images).Where("job_id = ?", jobID).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}

	return images, nil
}

func (r *ImageRepository) ListAll(ctx context.Context) ([]models.Image, error) {
	var images []models.Image
	if err := r.db.NewSelect().Model(&images).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}

	return images, nil
}

func (r *ImageRepository) CountByJobID(ctx context.Context, jobID int64) (int, error) {
	return r.db.NewSelect().Model((*models.Image)(nil)).Where("job_id = ?", jobID).Count(ctx)
}

func (r *ImageRepository) CountByJobIDs(ctx context.Context, jobIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(jobIDs))
	if len(jobIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		JobID int64 `bun:"job_id"`
		Count int   `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*models.Image)(nil)).
		Column("job_id").
		ColumnExpr("COUNT(*) AS count").
		Where("job_id IN (?)", bun.In(jobIDs)).
		Group("job_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.JobID] = row.Count
	}

	return counts, nil
}

func (r *ImageRepository) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().Model((*models.Image)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *ImageRepository) DeleteByJobID(ctx context.Context, jobID int64) error {
	_, err := r.db.NewDelete().Model((*models.Image)(nil)).Where("job_id = ?", jobID).Exec(ctx)
	return err
}

func (r *ImageRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.NewDelete().Model((*models.Image)(nil)).Where("1 = 1").Exec(ctx)
	return err
}

func (r *ImageRepository) WithTx(tx *bun.Tx) IImageRepository {
	return &ImageRepository{db: tx}
}
