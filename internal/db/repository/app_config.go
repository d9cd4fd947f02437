package repository

import (
	"context"
	"time"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IAppConfigRepository interface {
	WithTx(tx *bun.Tx) IAppConfigRepository
	Get(ctx context.Context, key string) (string, error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	SetIfMissing(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type AppConfigRepository struct {
	db bun.IDB
}

func NewAppConfigRepository(db bun.IDB) IAppConfigRepository {
	return &AppConfigRepository{db: db}
}

// Get returns ErrNotFound when the key has never been set.
func (r *AppConfigRepository) Get(ctx context.Context, key string) (string, error) {
	var entry models.AppConfig
	if err := r.db.NewSelect().Model(&entry).Where("key = ?", key).Scan(ctx); err != nil {
		return "", notFound(err)
	}

	return entry.Value, nil
}

func (r *AppConfigRepository) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	var entries []models.AppConfig
	if err := r.db.NewSelect().Model(&entries).Where("key IN (?)", bun.In(keys)).Scan(ctx); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		values[entry.Key] = entry.Value
	}

	return values, nil
}

func (r *AppConfigRepository) Set(ctx context.Context, key, value string) error {
	entry := &models.AppConfig{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *AppConfigRepository) SetIfMissing(ctx context.Context, key, value string) error {
	entry := &models.AppConfig{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := r.db.NewInsert().Model(entry).On("CONFLICT (key) DO NOTHING").Exec(ctx)
	return err
}

func (r *AppConfigRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := r.db.NewDelete().Model((*models.AppConfig)(nil)).Where("key IN (?)", bun.In(keys)).Exec(ctx)
	return err
}

func (r *AppConfigRepository) WithTx(tx *bun.Tx) IAppConfigRepository {
	return &AppConfigRepository{db: tx}
}
