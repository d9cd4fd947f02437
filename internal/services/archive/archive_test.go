package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/dbtest"
	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events/eventstest"
	"github.com/cozy-creator/sticker-server/internal/utils/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc       *Service
	jobs      repository.IJobRepository
	images    repository.IImageRepository
	appConfig repository.IAppConfigRepository
	imageDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	f := &fixture{
		jobs:      repository.NewJobRepository(db),
		images:    repository.NewImageRepository(db),
		appConfig: repository.NewAppConfigRepository(db),
		imageDir:  t.TempDir(),
	}

	svc, err := NewService(f.jobs, f.images, f.appConfig, filepath.Join(t.TempDir(), "archives"), &eventstest.Recorder{}, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) job(t *testing.T, status models.JobStatus) *models.Job {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), &models.Job{Status: status})
	require.NoError(t, err)
	return job
}

func (f *fixture) image(t *testing.T, jobID int64, filename, content string) *models.Image {
	t.Helper()
	dir, err := os.MkdirTemp(f.imageDir, "img")
	require.NoError(t, err)
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	img, err := f.images.Create(context.Background(), &models.Image{
		JobID:      jobID,
		Path:       path,
		Filename:   filename,
		PromptText: filename,
		CreatedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return img
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuildJobArchiveBundlesEveryImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")
	f.image(t, job.ID, "002-dog.png", "dog")

	path, err := f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, f.svc.JobArchivePath(job.ID), path)
	assert.Equal(t, []string{"001-cat.png", "002-dog.png"}, zipNames(t, path))

	sum, size, err := hashutil.Sha256File(path)
	require.NoError(t, err)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, path, got.ZipPath)
	assert.Equal(t, sum, got.ZipSHA256)
	assert.Equal(t, size, got.ZipSizeBytes)
	assert.NotEmpty(t, got.ZipFingerprint)
	assert.False(t, got.ZipBuiltAt.IsZero())
}

func TestBuildJobArchiveIsDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")
	f.image(t, job.ID, "002-dog.png", "dog")

	path, err := f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	first, _, err := hashutil.Sha256File(path)
	require.NoError(t, err)

	_, err = f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	second, _, err := hashutil.Sha256File(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildJobArchiveSkipsMissingFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	cat := f.image(t, job.ID, "001-cat.png", "cat")
	dog := f.image(t, job.ID, "002-dog.png", "dog")
	require.NoError(t, os.Remove(cat.Path))

	path, err := f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"002-dog.png"}, zipNames(t, path))

	require.NoError(t, os.Remove(dog.Path))
	path, err = f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = os.Stat(f.svc.JobArchivePath(job.ID))
	assert.True(t, os.IsNotExist(err))

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ZipPath)
	assert.Empty(t, got.ZipSHA256)
}

func TestGetOrBuildJobArchiveReusesUntilImagesChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")

	first, err := f.svc.GetOrBuildJobArchive(ctx, job.ID)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	again, err := f.svc.GetOrBuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first.SHA256, again.SHA256)
	assert.True(t, first.BuiltAt.Equal(again.BuiltAt), "cached archive must not be rebuilt")

	f.image(t, job.ID, "002-dog.png", "dog")
	rebuilt, err := f.svc.GetOrBuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.SHA256, rebuilt.SHA256)
	assert.Len(t, zipNames(t, rebuilt.Path), 2)
}

func TestGetOrBuildJobArchiveRequiresSucceededJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusRunning)
	f.image(t, job.ID, "001-cat.png", "cat")

	_, err := f.svc.GetOrBuildJobArchive(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotSucceeded)

	_, err = f.svc.GetOrBuildJobArchive(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	empty := f.job(t, models.JobStatusSucceeded)
	_, err = f.svc.GetOrBuildJobArchive(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestBuildJobArchiveRequiresSucceededJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, status := range []models.JobStatus{models.JobStatusRunning, models.JobStatusFailed, models.JobStatusCanceled} {
		job := f.job(t, status)
		f.image(t, job.ID, "001-cat.png", "cat")

		path, err := f.svc.BuildJobArchive(ctx, job.ID)
		require.NoError(t, err, status)
		assert.Empty(t, path, status)

		_, err = os.Stat(f.svc.JobArchivePath(job.ID))
		assert.True(t, os.IsNotExist(err), status)

		got, err := f.jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ZipPath, status)
	}

	_, err := f.svc.BuildJobArchive(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetOrBuildJobArchiveConcurrentCallsAgree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")
	f.image(t, job.ID, "002-dog.png", "dog")

	var wg sync.WaitGroup
	sums := make([]string, 8)
	errs := make([]error, 8)
	for i := range sums {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := f.svc.GetOrBuildJobArchive(ctx, job.ID)
			errs[i] = err
			if err == nil {
				sums[i] = info.SHA256
			}
		}(i)
	}
	wg.Wait()

	for i := range sums {
		require.NoError(t, errs[i])
		assert.Equal(t, sums[0], sums[i])
	}
}

func TestAggregateArchiveSpansJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.job(t, models.JobStatusSucceeded)
	b := f.job(t, models.JobStatusSucceeded)
	f.image(t, a.ID, "001-cat.png", "cat")
	f.image(t, b.ID, "001-dog.png", "dog")

	path, err := f.svc.BuildAggregateArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1/001-cat.png", "job_2/001-dog.png"}, zipNames(t, path))

	info, err := f.svc.AggregateInfo(ctx)
	require.NoError(t, err)
	sum, size, err := hashutil.Sha256File(path)
	require.NoError(t, err)
	assert.Equal(t, sum, info.SHA256)
	assert.Equal(t, size, info.SizeBytes)
}

func TestInvalidateAggregateRemovesFileAndMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")

	path, err := f.svc.BuildAggregateArchive(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.InvalidateAggregate(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	values, err := f.appConfig.GetMany(ctx, models.AggregateConfigKeys...)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = f.svc.AggregateInfo(ctx)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestAggregateAfterImagesDeletedIsNotStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	img := f.image(t, job.ID, "001-cat.png", "cat")

	_, err := f.svc.GetOrBuildAggregateArchive(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(img.Path))
	require.NoError(t, f.images.DeleteAll(ctx))
	require.NoError(t, f.svc.InvalidateAggregate(ctx))

	_, err = f.svc.GetOrBuildAggregateArchive(ctx)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestGetOrBuildAggregateRebuildsWhenImagesChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")

	first, err := f.svc.GetOrBuildAggregateArchive(ctx)
	require.NoError(t, err)

	cached, err := f.svc.GetOrBuildAggregateArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.SHA256, cached.SHA256)

	f.image(t, job.ID, "002-dog.png", "dog")
	rebuilt, err := f.svc.GetOrBuildAggregateArchive(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.SHA256, rebuilt.SHA256)
}

func TestRemoveAllJobArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")

	path, err := f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveAllJobArchives(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = f.svc.JobArchiveInfo(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestRemoveJobArchiveDropsJobLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.job(t, models.JobStatusSucceeded)
	f.image(t, job.ID, "001-cat.png", "cat")

	path, err := f.svc.BuildJobArchive(ctx, job.ID)
	require.NoError(t, err)
	_, ok := f.svc.jobLocks.Load(job.ID)
	require.True(t, ok)

	require.NoError(t, f.svc.RemoveJobArchive(ctx, job.ID))
	_, ok = f.svc.jobLocks.Load(job.ID)
	assert.False(t, ok)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
