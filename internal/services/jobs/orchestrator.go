package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/archive"
	"github.com/cozy-creator/sticker-server/internal/services/filestorage"
	"github.com/cozy-creator/sticker-server/internal/services/generation"
	"github.com/cozy-creator/sticker-server/internal/services/prompts"
	"go.uber.org/zap"
)

const DefaultListLimit = 50

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrJobNotCancelable    = errors.New("job can only be canceled while queued or running")
	ErrJobActive           = errors.New("job is still queued or running")
	ErrPromptsFileNotFound = errors.New("prompts file not found")
)

// Runner executes a job's prompts. *generation.Worker implements it.
type Runner interface {
	RunSnapshot(ctx context.Context, jobID int64, prompts []string, snapshot *models.ConfigSnapshot) (models.JobStatus, error)
}

// JobSummary is a job together with the values the UI needs alongside it.
type JobSummary struct {
	*models.Job
	ImageCount      int    `json:"image_count"`
	ZipReady        bool   `json:"zip_ready"`
	PromptsFileName string `json:"prompts_file_name,omitempty"`
}

// Orchestrator creates jobs, schedules their runs in the background and owns
// the cleanup that follows them.
type Orchestrator struct {
	jobs      repository.IJobRepository
	images    repository.IImageRepository
	files     repository.IPromptsFileRepository
	appConfig repository.IAppConfigRepository
	runner    Runner
	archives  *archive.Service
	storage   *filestorage.LocalFileStorage
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	baseCtx       context.Context
	defaultAPIKey string
	processNext   func(ctx context.Context) (bool, error)

	mu      sync.Mutex
	running map[int64]context.CancelCauseFunc
	wg      sync.WaitGroup
}

type Option func(o *Orchestrator)

// WithBaseContext sets the context every run derives from. Cancelling it
// stops all runs and marks them failed.
func WithBaseContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		o.baseCtx = ctx
	}
}

// WithDefaultAPIKey is the credential used when none is stored in app_config.
func WithDefaultAPIKey(key string) Option {
	return func(o *Orchestrator) {
		o.defaultAPIKey = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(
	jobs repository.IJobRepository,
	images repository.IImageRepository,
	files repository.IPromptsFileRepository,
	appConfig repository.IAppConfigRepository,
	runner Runner,
	archives *archive.Service,
	storage *filestorage.LocalFileStorage,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		jobs:      jobs,
		images:    images,
		files:     files,
		appConfig: appConfig,
		runner:    runner,
		archives:  archives,
		storage:   storage,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
		baseCtx:   context.Background(),
		running:   make(map[int64]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// OnJobDone registers the queue trigger run after every job reaches a
// terminal state.
func (o *Orchestrator) OnJobDone(processNext func(ctx context.Context) (bool, error)) {
	o.processNext = processNext
}

// CreateJob snapshots the current generation settings onto a new queued job
// for the prompts file and schedules its run without waiting for it.
func (o *Orchestrator) CreateJob(ctx context.Context, promptsFileID int64) (*models.Job, error) {
	file, err := o.files.GetByID(ctx, promptsFileID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPromptsFileNotFound
	}
	if err != nil {
		return nil, err
	}

	lines, err := prompts.ReadPrompts(file.Path)
	if err != nil && !errors.Is(err, prompts.ErrNoPrompts) {
		return nil, fmt.Errorf("failed to read prompts file %d: %w", file.ID, err)
	}

	snapshot, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := snapshot.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode config snapshot: %w", err)
	}

	job, err := o.jobs.Create(ctx, &models.Job{
		Status:             models.JobStatusQueued,
		PromptsFileID:      file.ID,
		BasePromptSnapshot: snapshot.BasePrompt,
		ConfigSnapshot:     encoded,
		TotalPrompts:       len(lines),
		StartedAt:          o.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	claimed, err := o.files.ClaimProcessing(ctx, file.ID)
	if err != nil {
		o.logger.Warn("failed to claim prompts file", zap.Int64("prompts_file_id", file.ID), zap.Error(err))
	}

	o.logger.Info("job created",
		zap.Int64("job_id", job.ID),
		zap.Int64("prompts_file_id", file.ID),
		zap.Int("prompts", len(lines)),
		zap.Bool("claimed", claimed),
	)
	o.events.Publish(events.TypeJobCreated, events.Payload{
		"job_id":          job.ID,
		"prompts_file_id": file.ID,
		"status":          job.Status,
		"total_prompts":   job.TotalPrompts,
	})

	o.schedule(job.ID, file.ID, lines, snapshot)

	return job, nil
}

func (o *Orchestrator) snapshot(ctx context.Context) (*models.ConfigSnapshot, error) {
	values, err := o.appConfig.GetMany(ctx,
		models.ConfigKeyBasePrompt,
		models.ConfigKeyAPIKey,
		models.ConfigKeyProvider,
		models.ConfigKeyModel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	snapshot := &models.ConfigSnapshot{
		BasePrompt: values[models.ConfigKeyBasePrompt],
		APIKey:     values[models.ConfigKeyAPIKey],
		Provider:   values[models.ConfigKeyProvider],
		Model:      values[models.ConfigKeyModel],
	}
	if snapshot.APIKey == "" {
		snapshot.APIKey = o.defaultAPIKey
	}

	return snapshot, nil
}

func (o *Orchestrator) schedule(jobID, promptsFileID int64, lines []string, snapshot *models.ConfigSnapshot) {
	runCtx, cancel := context.WithCancelCause(o.baseCtx)

	o.mu.Lock()
	o.running[jobID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, jobID)
			o.mu.Unlock()
			cancel(nil)
		}()

		o.run(runCtx, jobID, promptsFileID, lines, snapshot)
	}()
}

func (o *Orchestrator) run(ctx context.Context, jobID, promptsFileID int64, lines []string, snapshot *models.ConfigSnapshot) {
	logger := o.logger.With(zap.Int64("job_id", jobID))

	status, err := o.runner.RunSnapshot(ctx, jobID, lines, snapshot)
	if err != nil {
		logger.Error("job run ended with error", zap.String("status", string(status)), zap.Error(err))
	}

	// follow-up work must complete even when the run was stopped by shutdown
	bg := context.WithoutCancel(ctx)

	if status == models.JobStatusSucceeded {
		if _, err := o.archives.BuildJobArchive(bg, jobID); err != nil {
			logger.Error("failed to build job archive", zap.Error(err))
		}
		if err := o.archives.InvalidateAggregate(bg); err != nil {
			logger.Error("failed to invalidate aggregate archive", zap.Error(err))
		}
	}

	if err := o.files.UpdateStatus(bg, promptsFileID, models.PromptsFileStatusCompleted); err != nil {
		logger.Error("failed to complete prompts file", zap.Int64("prompts_file_id", promptsFileID), zap.Error(err))
	}

	if o.processNext != nil && o.baseCtx.Err() == nil {
		if _, err := o.processNext(bg); err != nil {
			logger.Error("failed to process prompt queue", zap.Error(err))
		}
	}
}

// CancelJob marks a queued or running job canceled and interrupts the wait
// before its next prompt. A provider call already in flight still completes and
// its image is kept; the run stops at the following status check.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := o.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsCancelable() {
		return nil, ErrJobNotCancelable
	}

	finishedAt := o.now().UTC()
	ok, err := o.jobs.TransitionStatus(ctx, jobID,
		[]models.JobStatus{models.JobStatusQueued, models.JobStatusRunning},
		models.JobStatusCanceled, finishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job %d: %w", jobID, err)
	}
	if !ok {
		return nil, ErrJobNotCancelable
	}

	o.mu.Lock()
	if cancel, ok := o.running[jobID]; ok {
		cancel(generation.ErrJobCanceled)
	}
	o.mu.Unlock()

	o.logger.Info("job canceled", zap.Int64("job_id", jobID))
	o.events.Publish(events.TypeJobUpdated, events.Payload{
		"job_id":      jobID,
		"status":      models.JobStatusCanceled,
		"finished_at": finishedAt.Format(time.RFC3339),
	})

	return o.getJob(ctx, jobID)
}

func (o *Orchestrator) GetJob(ctx context.Context, jobID int64) (*JobSummary, error) {
	job, err := o.jobs.GetFullByID(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	count, err := o.images.CountByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return summarize(job, count), nil
}

// ListJobs returns the newest jobs first.
func (o *Orchestrator) ListJobs(ctx context.Context, limit int) ([]JobSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	jobs, err := o.jobs.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(jobs))
	for i := range jobs {
		ids[i] = jobs[i].ID
	}
	counts, err := o.images.CountByJobIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]JobSummary, len(jobs))
	for i := range jobs {
		summaries[i] = *summarize(&jobs[i], counts[jobs[i].ID])
	}

	return summaries, nil
}

func (o *Orchestrator) LatestSucceeded(ctx context.Context) (*models.Job, error) {
	job, err := o.jobs.LatestSucceeded(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}

	return job, err
}

// DeleteJob removes a finished job with its images and archive.
func (o *Orchestrator) DeleteJob(ctx context.Context, jobID int64) error {
	job, err := o.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsCancelable() {
		return ErrJobActive
	}

	images, err := o.images.ListByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	o.removeFiles(ctx, images)
	if err := o.storage.RemoveFolder(strconv.FormatInt(jobID, 10)); err != nil {
		o.logger.Warn("failed to remove job image folder", zap.Int64("job_id", jobID), zap.Error(err))
	}

	if err := o.images.DeleteByJobID(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete images of job %d: %w", jobID, err)
	}
	if err := o.archives.RemoveJobArchive(ctx, jobID); err != nil {
		return err
	}
	if err := o.jobs.DeleteByID(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", jobID, err)
	}
	if err := o.archives.InvalidateAggregate(ctx); err != nil {
		return err
	}

	o.logger.Info("job deleted", zap.Int64("job_id", jobID), zap.Int("images", len(images)))
	o.events.Publish(events.TypeJobDeleted, events.Payload{"job_id": jobID})

	return nil
}

// PurgeImages deletes every image file and record, every job archive and the
// aggregate archive. It returns the number of images removed.
func (o *Orchestrator) PurgeImages(ctx context.Context) (int, error) {
	images, err := o.images.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	o.removeFiles(ctx, images)

	if err := o.images.DeleteAll(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete images: %w", err)
	}
	if err := o.archives.RemoveAllJobArchives(ctx); err != nil {
		return 0, err
	}
	if err := o.archives.InvalidateAggregate(ctx); err != nil {
		return 0, err
	}

	o.logger.Info("purged all images", zap.Int("images", len(images)))
	o.events.Publish(events.TypeImagesPurged, events.Payload{"deleted": len(images)})

	return len(images), nil
}

// Wait blocks until every scheduled run has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) getJob(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}

	return job, err
}

func (o *Orchestrator) removeFiles(ctx context.Context, images []models.Image) {
	for _, img := range images {
		if err := o.storage.Remove(ctx, img.Path); err != nil {
			o.logger.Warn("failed to remove image file", zap.Int64("image_id", img.ID), zap.Error(err))
		}
	}
}

func summarize(job *models.Job, imageCount int) *JobSummary {
	summary := &JobSummary{
		Job:        job,
		ImageCount: imageCount,
		ZipReady:   job.Status == models.JobStatusSucceeded && job.ZipPath != "" && fileExists(job.ZipPath),
	}
	if job.PromptsFile != nil {
		summary.PromptsFileName = job.PromptsFile.Filename
	}

	return summary
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
