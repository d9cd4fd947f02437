package archive

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/events"
	"go.uber.org/zap"
)

// BuildAggregateArchive (re)builds the bundle of every image across every
// job. Entries are named job_<id>/<filename>. It returns "" when there are no
// images, after invalidating any previous aggregate.
func (s *Service) BuildAggregateArchive(ctx context.Context) (string, error) {
	s.aggregateMu.Lock()
	defer s.aggregateMu.Unlock()

	info, err := s.buildAggregate(ctx)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}

	return info.Path, nil
}

// GetOrBuildAggregateArchive serves the cached aggregate while it still
// matches the current set of images and rebuilds it otherwise.
func (s *Service) GetOrBuildAggregateArchive(ctx context.Context) (*Info, error) {
	v, err, _ := s.group.Do(aggregateName, func() (interface{}, error) {
		s.aggregateMu.Lock()
		defer s.aggregateMu.Unlock()

		entries, err := s.aggregateEntries(ctx)
		if err != nil {
			return nil, err
		}

		if info, fp, err := s.recordedAggregate(ctx); err == nil && fp == fingerprint(entries) && fileExists(info.Path) {
			return info, nil
		}

		info, err := s.buildAggregate(ctx)
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

// AggregateInfo returns the recorded aggregate metadata without building.
func (s *Service) AggregateInfo(ctx context.Context) (*Info, error) {
	s.aggregateMu.Lock()
	defer s.aggregateMu.Unlock()

	info, _, err := s.recordedAggregate(ctx)
	if err != nil {
		return nil, err
	}
	if !fileExists(info.Path) {
		return nil, ErrNotBuilt
	}

	return info, nil
}

// InvalidateAggregate deletes the aggregate file and its metadata so the next
// request rebuilds it. It waits for an in-flight aggregate build to finish.
func (s *Service) InvalidateAggregate(ctx context.Context) error {
	s.aggregateMu.Lock()
	defer s.aggregateMu.Unlock()

	return s.invalidateAggregate(ctx)
}

func (s *Service) invalidateAggregate(ctx context.Context) error {
	if err := removeFile(s.AggregatePath()); err != nil {
		return err
	}

	if err := s.appConfig.Delete(ctx, models.AggregateConfigKeys...); err != nil {
		return fmt.Errorf("failed to clear aggregate archive metadata: %w", err)
	}

	return nil
}

func (s *Service) buildAggregate(ctx context.Context) (*Info, error) {
	entries, err := s.aggregateEntries(ctx)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, s.invalidateAggregate(ctx)
	}

	info, err := s.write(s.AggregatePath(), entries)
	if err != nil {
		return nil, err
	}

	values := map[string]string{
		models.ConfigKeyAggregatePath:        info.Path,
		models.ConfigKeyAggregateSHA256:      info.SHA256,
		models.ConfigKeyAggregateSizeBytes:   strconv.FormatInt(info.SizeBytes, 10),
		models.ConfigKeyAggregateFingerprint: fingerprint(entries),
		models.ConfigKeyAggregateBuiltAt:     info.BuiltAt.Format(time.RFC3339Nano),
	}
	for _, key := range models.AggregateConfigKeys {
		if err := s.appConfig.Set(ctx, key, values[key]); err != nil {
			return nil, fmt.Errorf("failed to record aggregate archive: %w", err)
		}
	}

	s.logger.Info("built aggregate archive", zap.Int("entries", len(entries)), zap.Int64("size_bytes", info.SizeBytes))
	s.mirror(ctx, info, events.Payload{"kind": aggregateName})

	return info, nil
}

func (s *Service) aggregateEntries(ctx context.Context) ([]entry, error) {
	images, err := s.images.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	return s.entries(images, func(img models.Image) string {
		return fmt.Sprintf("job_%d/%s", img.JobID, img.Filename)
	}), nil
}

func (s *Service) recordedAggregate(ctx context.Context) (*Info, string, error) {
	values, err := s.appConfig.GetMany(ctx, models.AggregateConfigKeys...)
	if err != nil {
		return nil, "", err
	}

	path := values[models.ConfigKeyAggregatePath]
	if path == "" {
		return nil, "", ErrNotBuilt
	}

	size, _ := strconv.ParseInt(values[models.ConfigKeyAggregateSizeBytes], 10, 64)
	builtAt, _ := time.Parse(time.RFC3339Nano, values[models.ConfigKeyAggregateBuiltAt])

	return &Info{
		Path:      path,
		SizeBytes: size,
		SHA256:    values[models.ConfigKeyAggregateSHA256],
		BuiltAt:   builtAt,
	}, values[models.ConfigKeyAggregateFingerprint], nil
}
