package generation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/filestorage"
	"github.com/cozy-creator/sticker-server/internal/utils/imageutil"
	"github.com/cozy-creator/sticker-server/internal/utils/randutil"
	"go.uber.org/zap"
)

// ErrJobCanceled is used as the cancellation cause of a run context when the
// job was canceled by a user rather than by shutdown.
var ErrJobCanceled = errors.New("job canceled")

// Target selects the backend and image parameters of a run.
type Target struct {
	Provider string
	Model    string
	Size     string
	Quality  string
}

// Worker runs one job's prompts sequentially against an image provider,
// pacing requests with an adaptive throttle.
type Worker struct {
	jobs     repository.IJobRepository
	images   repository.IImageRepository
	storage  filestorage.FileStorage
	events   events.Publisher
	factory  ProviderFactory
	logger   *zap.Logger
	throttle ThrottleConfig
	defaults Target

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
	now    func() time.Time
}

type WorkerOption func(w *Worker)

func WithThrottle(cfg ThrottleConfig) WorkerOption {
	return func(w *Worker) {
		w.throttle = cfg
	}
}

func WithDefaults(target Target) WorkerOption {
	return func(w *Worker) {
		w.defaults = target
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) WorkerOption {
	return func(w *Worker) {
		w.sleep = sleep
	}
}

func WithJitter(jitter func(d time.Duration) time.Duration) WorkerOption {
	return func(w *Worker) {
		w.jitter = jitter
	}
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.now = now
	}
}

func NewWorker(
	jobs repository.IJobRepository,
	images repository.IImageRepository,
	storage filestorage.FileStorage,
	publisher events.Publisher,
	factory ProviderFactory,
	logger *zap.Logger,
	opts ...WorkerOption,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Worker{
		jobs:     jobs,
		images:   images,
		storage:  storage,
		events:   publisher,
		factory:  factory,
		logger:   logger,
		throttle: DefaultThrottleConfig(),
		sleep:    sleepContext,
		jitter:   jitterDuration,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.throttle.MaxAttempts < 1 {
		w.throttle.MaxAttempts = 1
	}

	return w
}

// Run generates one image per prompt for the job using the worker's default
// target. It returns the job's terminal status.
func (w *Worker) Run(ctx context.Context, jobID int64, prompts []string, stylePrefix, credential string) (models.JobStatus, error) {
	return w.RunSnapshot(ctx, jobID, prompts, &models.ConfigSnapshot{
		BasePrompt: stylePrefix,
		APIKey:     credential,
	})
}

// RunSnapshot is Run driven by the configuration frozen on the job. Empty
// snapshot fields fall back to the worker defaults.
func (w *Worker) RunSnapshot(ctx context.Context, jobID int64, prompts []string, snapshot *models.ConfigSnapshot) (models.JobStatus, error) {
	logger := w.logger.With(zap.Int64("job_id", jobID))

	if strings.TrimSpace(snapshot.APIKey) == "" {
		logger.Error("cannot run job without a provider credential")
		status, err := w.finish(context.WithoutCancel(ctx), jobID, models.JobStatusFailed, models.JobStatusQueued, models.JobStatusRunning)
		if err != nil {
			return status, err
		}
		return status, ErrMissingCredential
	}

	target := w.target(snapshot)
	provider, err := w.factory(target.Provider, snapshot.APIKey)
	if err != nil {
		logger.Error("failed to create image provider", zap.String("provider", target.Provider), zap.Error(err))
		status, ferr := w.finish(context.WithoutCancel(ctx), jobID, models.JobStatusFailed, models.JobStatusQueued, models.JobStatusRunning)
		if ferr != nil {
			return status, ferr
		}
		return status, err
	}

	started, err := w.jobs.TransitionStatus(ctx, jobID, []models.JobStatus{models.JobStatusQueued}, models.JobStatusRunning, time.Time{})
	if err != nil {
		return "", fmt.Errorf("failed to start job %d: %w", jobID, err)
	}
	if !started {
		job, err := w.jobs.GetByID(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("failed to load job %d: %w", jobID, err)
		}
		logger.Info("job is not queued, skipping run", zap.String("status", string(job.Status)))
		return job.Status, nil
	}
	w.publishStatus(jobID, models.JobStatusRunning, time.Time{})

	logger.Info("job started", zap.Int("prompts", len(prompts)), zap.String("model", target.Model))

	th := newThrottle(w.throttle)
	for i, prompt := range prompts {
		if i > 0 {
			if err := w.sleep(ctx, w.jitter(th.Delay())); err != nil {
				return w.abort(ctx, jobID, err)
			}
		}

		job, err := w.jobs.GetByID(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return w.abort(ctx, jobID, ctx.Err())
			}
			return "", fmt.Errorf("failed to load job %d: %w", jobID, err)
		}
		if job.Status != models.JobStatusRunning {
			logger.Info("job stopped before prompt", zap.Int("index", i+1), zap.String("status", string(job.Status)))
			return job.Status, nil
		}

		if err := w.generate(ctx, logger, provider, th, jobID, i+1, len(prompts), prompt, snapshot.BasePrompt, target); err != nil {
			return w.abort(ctx, jobID, err)
		}
	}

	status, err := w.finish(ctx, jobID, models.JobStatusSucceeded, models.JobStatusRunning)
	if err != nil {
		return status, err
	}

	logger.Info("job finished", zap.String("status", string(status)))
	return status, nil
}

// generate runs the retry loop for one prompt. It only returns an error when
// the run context ends; exhausted prompts are skipped.
func (w *Worker) generate(
	ctx context.Context,
	logger *zap.Logger,
	provider Provider,
	th *throttle,
	jobID int64,
	index, total int,
	prompt, stylePrefix string,
	target Target,
) error {
	req := Request{
		Prompt:  EnhancePrompt(prompt, stylePrefix),
		Model:   target.Model,
		Size:    target.Size,
		Quality: target.Quality,
	}

	var lastErr error
	for attempt := 1; attempt <= w.throttle.MaxAttempts; attempt++ {
		callCtx, release := callContext(ctx)
		image, err := w.attempt(callCtx, provider, req, jobID, index, prompt)
		release()
		if err == nil {
			th.OnSuccess()
			w.events.Publish(events.TypeImageCreated, events.Payload{
				"image_id": image.ID,
				"job_id":   jobID,
				"filename": image.Filename,
				"progress": fmt.Sprintf("%d/%d", index, total),
			})
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		var (
			wait      time.Duration
			rateLimit *RateLimitError
			provErr   *ProviderError
		)
		switch {
		case errors.As(err, &rateLimit):
			wait = w.jitter(th.OnRateLimit(rateLimit.RetryAfter))
		case errors.As(err, &provErr):
			wait = w.jitter(th.OnProviderError())
		}

		logger.Warn("image generation attempt failed",
			zap.Int("index", index),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		if attempt < w.throttle.MaxAttempts && wait > 0 {
			if err := w.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	logger.Warn("skipping prompt after exhausting attempts", zap.Int("index", index), zap.String("prompt", prompt))
	if err := w.jobs.IncrementSkipped(ctx, jobID); err != nil {
		logger.Error("failed to record skipped prompt", zap.Error(err))
	}
	w.events.Publish(events.TypePromptSkipped, events.Payload{
		"job_id":   jobID,
		"prompt":   prompt,
		"progress": fmt.Sprintf("%d/%d", index, total),
		"error":    lastErr.Error(),
	})

	return nil
}

func (w *Worker) attempt(ctx context.Context, provider Provider, req Request, jobID int64, index int, prompt string) (*models.Image, error) {
	data, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}

	info, err := imageutil.Inspect(data)
	if err != nil {
		return nil, err
	}

	filename := ImageFilename(index, prompt, info.Extension)
	path, err := w.storage.Upload(ctx, filestorage.NewFileInfo(
		strconv.FormatInt(jobID, 10),
		strings.TrimSuffix(filename, info.Extension),
		info.Extension,
		data,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	image, err := w.images.Create(ctx, &models.Image{
		JobID:      jobID,
		Path:       path,
		Filename:   filename,
		PromptText: prompt,
		Width:      info.Width,
		Height:     info.Height,
		MimeType:   info.MimeType,
		CreatedAt:  w.now().UTC(),
	})
	if err != nil {
		_ = w.storage.Remove(context.WithoutCancel(ctx), path)
		return nil, fmt.Errorf("failed to record image: %w", err)
	}

	return image, nil
}

// abort ends a run whose context was canceled. A user cancel has already
// written the canceled status; shutdown marks the job failed.
func (w *Worker) abort(ctx context.Context, jobID int64, err error) (models.JobStatus, error) {
	if errors.Is(context.Cause(ctx), ErrJobCanceled) {
		return models.JobStatusCanceled, nil
	}

	w.logger.Warn("job interrupted", zap.Int64("job_id", jobID), zap.Error(err))
	status, ferr := w.finish(context.WithoutCancel(ctx), jobID, models.JobStatusFailed, models.JobStatusQueued, models.JobStatusRunning)
	if ferr != nil {
		return status, ferr
	}

	return status, err
}

// finish moves the job to a terminal status if it is still in one of from.
// Otherwise the job keeps whatever status it has, which is returned.
func (w *Worker) finish(ctx context.Context, jobID int64, to models.JobStatus, from ...models.JobStatus) (models.JobStatus, error) {
	finishedAt := w.now().UTC()
	ok, err := w.jobs.TransitionStatus(ctx, jobID, from, to, finishedAt)
	if err != nil {
		return "", fmt.Errorf("failed to update job %d: %w", jobID, err)
	}

	if !ok {
		job, err := w.jobs.GetByID(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("failed to load job %d: %w", jobID, err)
		}
		return job.Status, nil
	}

	w.publishStatus(jobID, to, finishedAt)
	return to, nil
}

func (w *Worker) publishStatus(jobID int64, status models.JobStatus, finishedAt time.Time) {
	var finished any
	if !finishedAt.IsZero() {
		finished = finishedAt.Format(time.RFC3339)
	}

	w.events.Publish(events.TypeJobUpdated, events.Payload{
		"job_id":      jobID,
		"status":      status,
		"finished_at": finished,
	})
}

func (w *Worker) target(snapshot *models.ConfigSnapshot) Target {
	target := w.defaults
	if snapshot.Provider != "" {
		target.Provider = snapshot.Provider
	}
	if snapshot.Model != "" {
		target.Model = snapshot.Model
	}
	if snapshot.Size != "" {
		target.Size = snapshot.Size
	}
	if snapshot.Quality != "" {
		target.Quality = snapshot.Quality
	}

	return target
}

// callContext derives the context of one provider call and the persisting of
// its image. A user cancel does not reach it, so an in-flight call completes;
// any other end of ctx, such as shutdown, does.
func callContext(ctx context.Context) (context.Context, func()) {
	callCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		if cause := context.Cause(ctx); !errors.Is(cause, ErrJobCanceled) {
			cancel(cause)
		}
	})

	return callCtx, func() {
		stop()
		cancel(nil)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jitterDuration(d time.Duration) time.Duration {
	return time.Duration(randutil.Jitter(float64(d), 0.1))
}
