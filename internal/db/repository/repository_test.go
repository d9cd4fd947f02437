package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/dbtest"
	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTransitionStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	jobs := repository.NewJobRepository(dbtest.Open(t))

	job, err := jobs.Create(ctx, &models.Job{Status: models.JobStatusQueued})
	require.NoError(t, err)
	require.NotZero(t, job.ID)

	ok, err := jobs.TransitionStatus(ctx, job.ID, []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning}, models.JobStatusCanceled, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = jobs.TransitionStatus(ctx, job.ID, []models.JobStatus{models.JobStatusRunning}, models.JobStatusSucceeded, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, got.Status)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestJobGetByIDNotFound(t *testing.T) {
	_, err := repository.NewJobRepository(dbtest.Open(t)).GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestJobArchiveMetadata(t *testing.T) {
	ctx := context.Background()
	jobs := repository.NewJobRepository(dbtest.Open(t))

	job, err := jobs.Create(ctx, &models.Job{Status: models.JobStatusSucceeded})
	require.NoError(t, err)

	builtAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, jobs.SetArchive(ctx, job.ID, repository.ArchiveMeta{
		Path: "/tmp/1.zip", SizeBytes: 10, SHA256: "abc", Fingerprint: "fp", BuiltAt: builtAt,
	}))

	withArchive, err := jobs.ListWithArchive(ctx)
	require.NoError(t, err)
	require.Len(t, withArchive, 1)
	assert.Equal(t, "abc", withArchive[0].ZipSHA256)
	assert.Equal(t, int64(10), withArchive[0].ZipSizeBytes)

	require.NoError(t, jobs.ClearAllArchives(ctx))
	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ZipPath)
	assert.Empty(t, got.ZipSHA256)
	assert.True(t, got.ZipBuiltAt.IsZero())
}

func TestImageCountsByJob(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	images := repository.NewImageRepository(db)

	for _, jobID := range []int64{1, 1, 2} {
		_, err := images.Create(ctx, &models.Image{JobID: jobID, Path: "p", Filename: "f", PromptText: "x"})
		require.NoError(t, err)
	}

	counts, err := images.CountByJobIDs(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, counts)

	n, err := images.CountByJobID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClaimProcessingAllowsOneHolder(t *testing.T) {
	ctx := context.Background()
	files := repository.NewPromptsFileRepository(dbtest.Open(t))

	a, err := files.Create(ctx, &models.PromptsFile{Filename: "a.txt", SHA256: "a", Path: "a", Status: models.PromptsFileStatusPending})
	require.NoError(t, err)
	b, err := files.Create(ctx, &models.PromptsFile{Filename: "b.txt", SHA256: "b", Path: "b", Status: models.PromptsFileStatusPending})
	require.NoError(t, err)

	ok, err := files.ClaimProcessing(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = files.ClaimProcessing(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, files.UpdateStatus(ctx, a.ID, models.PromptsFileStatusCompleted))
	ok, err = files.ClaimProcessing(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppConfigUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	cfg := repository.NewAppConfigRepository(dbtest.Open(t))

	_, err := cfg.Get(ctx, models.ConfigKeyBasePrompt)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, cfg.Set(ctx, models.ConfigKeyBasePrompt, "one"))
	require.NoError(t, cfg.Set(ctx, models.ConfigKeyBasePrompt, "two"))
	require.NoError(t, cfg.SetIfMissing(ctx, models.ConfigKeyBasePrompt, "three"))

	v, err := cfg.Get(ctx, models.ConfigKeyBasePrompt)
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	require.NoError(t, cfg.Delete(ctx, models.ConfigKeyBasePrompt))
	values, err := cfg.GetMany(ctx, models.ConfigKeyBasePrompt, models.ConfigKeyAPIKey)
	require.NoError(t, err)
	assert.Empty(t, values)
}
