package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/db/repository"
	"github.com/cozy-creator/sticker-server/internal/events"
	"github.com/cozy-creator/sticker-server/internal/services/fileuploader"
	"github.com/cozy-creator/sticker-server/internal/utils/hashutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	aggregateName = "aggregate"
	mirrorFolder  = "archives"
)

var (
	ErrNoImages        = errors.New("no images to archive")
	ErrJobNotSucceeded = errors.New("job has not succeeded")
	ErrNotBuilt        = errors.New("archive has not been built")
)

// Info describes a built archive on disk.
type Info struct {
	Path      string    `json:"-"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	BuiltAt   time.Time `json:"built_at"`
}

type entry struct {
	name     string
	path     string
	size     int64
	modified time.Time
}

// Service builds and caches ZIP bundles of generated images: one per job and
// one aggregate across every job. Bundles are content addressed by SHA-256 and
// rebuilt whenever their input manifest changes.
type Service struct {
	jobs      repository.IJobRepository
	images    repository.IImageRepository
	appConfig repository.IAppConfigRepository
	dir       string
	events    events.Publisher
	uploader  *fileuploader.Uploader
	logger    *zap.Logger
	now       func() time.Time

	group       singleflight.Group
	jobLocks    sync.Map
	aggregateMu sync.Mutex
}

type Option func(s *Service)

// WithMirror uploads every freshly built archive through uploader.
func WithMirror(uploader *fileuploader.Uploader) Option {
	return func(s *Service) {
		s.uploader = uploader
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	jobs repository.IJobRepository,
	images repository.IImageRepository,
	appConfig repository.IAppConfigRepository,
	dir string,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...Option,
) (*Service, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		jobs:      jobs,
		images:    images,
		appConfig: appConfig,
		dir:       dir,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) JobArchivePath(jobID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(jobID, 10)+".zip")
}

func (s *Service) AggregatePath() string {
	return filepath.Join(s.dir, aggregateName+".zip")
}

// BuildJobArchive (re)builds the job's bundle and records its metadata on the
// job. It is a no-op returning "" unless the job succeeded. It also returns ""
// when the job has no image files left, in which case any previous bundle is
// removed.
func (s *Service) BuildJobArchive(ctx context.Context, jobID int64) (string, error) {
	info, err := s.buildJob(ctx, jobID)
	if errors.Is(err, ErrJobNotSucceeded) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}

	return info.Path, nil
}

// GetOrBuildJobArchive returns the job's bundle, rebuilding it when it is
// missing on disk or its images changed since it was built. Concurrent calls
// for the same job share one build.
func (s *Service) GetOrBuildJobArchive(ctx context.Context, jobID int64) (*Info, error) {
	v, err, _ := s.group.Do("job:"+strconv.FormatInt(jobID, 10), func() (interface{}, error) {
		job, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", jobID, err)
		}
		if job.Status != models.JobStatusSucceeded {
			return nil, ErrJobNotSucceeded
		}

		entries, err := s.jobEntries(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if job.ZipPath != "" && job.ZipFingerprint == fingerprint(entries) && fileExists(job.ZipPath) {
			return &Info{Path: job.ZipPath, SizeBytes: job.ZipSizeBytes, SHA256: job.ZipSHA256, BuiltAt: job.ZipBuiltAt.Time}, nil
		}

		info, err := s.buildJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, ErrNoImages
		}

		return info, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Info), nil
}

// JobArchiveInfo returns the recorded bundle metadata without building.
func (s *Service) JobArchiveInfo(ctx context.Context, jobID int64) (*Info, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %d: %w", jobID, err)
	}
	if job.ZipPath == "" || !fileExists(job.ZipPath) {
		return nil, ErrNotBuilt
	}

	return &Info{Path: job.ZipPath, SizeBytes: job.ZipSizeBytes, SHA256: job.ZipSHA256, BuiltAt: job.ZipBuiltAt.Time}, nil
}

// RemoveJobArchive deletes the job's bundle file and clears its metadata. It
// is called when the job itself goes away, so the job's lock is dropped too.
func (s *Service) RemoveJobArchive(ctx context.Context, jobID int64) error {
	mu := s.jobLock(jobID)
	mu.Lock()
	err := s.removeJobArchive(ctx, jobID)
	mu.Unlock()

	s.jobLocks.Delete(jobID)
	return err
}

// RemoveAllJobArchives deletes every job bundle and clears its metadata.
func (s *Service) RemoveAllJobArchives(ctx context.Context) error {
	jobs, err := s.jobs.ListWithArchive(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := removeFile(job.ZipPath); err != nil {
			return err
		}
	}

	return s.jobs.ClearAllArchives(ctx)
}

func (s *Service) buildJob(ctx context.Context, jobID int64) (*Info, error) {
	mu := s.jobLock(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %d: %w", jobID, err)
	}
	if job.Status != models.JobStatusSucceeded {
		return nil, ErrJobNotSucceeded
	}

	entries, err := s.jobEntries(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, s.removeJobArchive(ctx, jobID)
	}

	info, err := s.write(s.JobArchivePath(jobID), entries)
	if err != nil {
		return nil, err
	}

	err = s.jobs.SetArchive(ctx, jobID, repository.ArchiveMeta{
		Path:        info.Path,
		SizeBytes:   info.SizeBytes,
		SHA256:      info.SHA256,
		Fingerprint: fingerprint(entries),
		BuiltAt:     info.BuiltAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record archive for job %d: %w", jobID, err)
	}

	s.logger.Info("built job archive",
		zap.Int64("job_id", jobID),
		zap.Int("entries", len(entries)),
		zap.Int64("size_bytes", info.SizeBytes),
	)
	s.mirror(ctx, info, events.Payload{"kind": "job", "job_id": jobID})

	return info, nil
}

func (s *Service) removeJobArchive(ctx context.Context, jobID int64) error {
	if err := removeFile(s.JobArchivePath(jobID)); err != nil {
		return err
	}

	return s.jobs.ClearArchive(ctx, jobID)
}

func (s *Service) jobLock(jobID int64) *sync.Mutex {
	mu, _ := s.jobLocks.LoadOrStore(jobID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Service) jobEntries(ctx context.Context, jobID int64) ([]entry, error) {
	images, err := s.images.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images for job %d: %w", jobID, err)
	}

	return s.entries(images, func(img models.Image) string { return img.Filename }), nil
}

// entries keeps images whose file still exists, in image id order.
func (s *Service) entries(images []models.Image, name func(models.Image) string) []entry {
	entries := make([]entry, 0, len(images))
	for _, img := range images {
		stat, err := os.Stat(img.Path)
		if err != nil || !stat.Mode().IsRegular() {
			s.logger.Warn("skipping missing image file", zap.Int64("image_id", img.ID), zap.String("path", img.Path))
			continue
		}

		entries = append(entries, entry{
			name:     name(img),
			path:     img.Path,
			size:     stat.Size(),
			modified: img.CreatedAt.UTC().Truncate(time.Second),
		})
	}

	return entries
}

// write produces the ZIP at dest. The temp file lives next to dest so the
// final rename is atomic.
func (s *Service) write(dest string, entries []entry) (*Info, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeZip(tmp, entries); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	sum, size, err := hashutil.Sha256File(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to hash archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	return &Info{Path: dest, SizeBytes: size, SHA256: sum, BuiltAt: s.now().UTC()}, nil
}

func writeZip(w io.Writer, entries []entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		header := &zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: e.modified,
		}
		header.SetMode(0o644)

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", e.name, err)
		}

		if err := copyFile(dst, e.path); err != nil {
			return fmt.Errorf("failed to add %s: %w", e.name, err)
		}
	}

	return zw.Close()
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(dst, f)
	return err
}

// fingerprint identifies the inputs of a bundle. Any added, removed or
// replaced image changes it.
func fingerprint(entries []entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s\t%s\t%d\t%d\n", e.name, e.path, e.size, e.modified.Unix())
	}

	return hashutil.Blake3Hash([]byte(b.String()))
}

func (s *Service) mirror(ctx context.Context, info *Info, payload events.Payload) {
	if s.uploader == nil {
		return
	}

	s.uploader.UploadFile(context.WithoutCancel(ctx), info.Path, mirrorFolder, func(result fileuploader.Result) {
		if result.Err != nil || result.URL == "" {
			return
		}

		payload["url"] = result.URL
		payload["sha256"] = info.SHA256
		s.events.Publish(events.TypeArchivePublished, payload)
	})
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Mode().IsRegular()
}

func removeFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove archive: %w", err)
	}

	return nil
}
