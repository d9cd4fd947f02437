package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
)

// ArchiveMeta is the archive bookkeeping stored on a job row.
type ArchiveMeta struct {
	Path        string
	SizeBytes   int64
	SHA256      string
	Fingerprint string
	BuiltAt     time.Time
}

type IJobRepository interface {
	Repository[models.Job]
	WithTx(tx *bun.Tx) IJobRepository
	GetFullByID(ctx context.Context, id int64) (*models.Job, error)
	List(ctx context.Context, limit int) ([]models.Job, error)
	LatestSucceeded(ctx context.Context) (*models.Job, error)
	ListWithArchive(ctx context.Context) ([]models.Job, error)
	TransitionStatus(ctx context.Context, id int64, from []models.JobStatus, to models.JobStatus, finishedAt time.Time) (bool, error)
	IncrementSkipped(ctx context.Context, id int64) error
	SetArchive(ctx context.Context, id int64, meta ArchiveMeta) error
	ClearArchive(ctx context.Context, id int64) error
	ClearAllArchives(ctx context.Context) error
}

type JobRepository struct {
	db bun.IDB
}

func NewJobRepository(db bun.IDB) IJobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("job model is nil")
	}

	if err := r.db.NewInsert().Model(job).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	if err := r.db.NewSelect().Model(&job).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &job, nil
}

func (r *JobRepository) GetFullByID(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	if err := r.db.NewSelect().Model(&job).Relation("PromptsFile").Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &job, nil
}

func (r *JobRepository) List(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	q := r.db.NewSelect().Model(&jobs).Relation("PromptsFile").OrderExpr("?TableAlias.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *JobRepository) LatestSucceeded(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := r.db.NewSelect().
		Model(&job).
		Where("status = ?", models.JobStatusSucceeded).
		OrderExpr("id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}

	return &job, nil
}

func (r *JobRepository) ListWithArchive(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.NewSelect().Model(&jobs).Where("zip_path IS NOT NULL").Scan(ctx); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *JobRepository) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().Model((*models.Job)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// TransitionStatus moves the job to status `to` only when its current status
// is one of `from`. It reports whether a row was changed. A zero finishedAt
// leaves finished_at untouched.
func (r *JobRepository) TransitionStatus(ctx context.Context, id int64, from []models.JobStatus, to models.JobStatus, finishedAt time.Time) (bool, error) {
	q := r.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", to).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	if !finishedAt.IsZero() {
		q = q.Set("finished_at = ?", finishedAt)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *JobRepository) IncrementSkipped(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("skipped_prompts = skipped_prompts + 1").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *JobRepository) SetArchive(ctx context.Context, id int64, meta ArchiveMeta) error {
	_, err := r.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("zip_path = ?", meta.Path).
		Set("zip_size_bytes = ?", meta.SizeBytes).
		Set("zip_sha256 = ?", meta.SHA256).
		Set("zip_fingerprint = ?", meta.Fingerprint).
		Set("zip_built_at = ?", meta.BuiltAt).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *JobRepository) ClearArchive(ctx context.Context, id int64) error {
	_, err := r.clearArchiveQuery().Where("id = ?", id).Exec(ctx)
	return err
}

func (r *JobRepository) ClearAllArchives(ctx context.Context) error {
	_, err := r.clearArchiveQuery().Where("zip_path IS NOT NULL").Exec(ctx)
	return err
}

func (r *JobRepository) clearArchiveQuery() *bun.UpdateQuery {
	return r.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("zip_path = NULL").
		Set("zip_size_bytes = NULL").
		Set("zip_sha256 = NULL").
		Set("zip_fingerprint = NULL").
		Set("zip_built_at = NULL")
}

func (r *JobRepository) WithTx(tx *bun.Tx) IJobRepository {
	return &JobRepository{db: tx}
}
