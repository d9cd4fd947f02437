package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"
)

func openDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpAndDown(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	migrator := migrate.NewMigrator(db, Migrations)
	require.NoError(t, migrator.Init(ctx))

	group, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, group.IsZero())

	exists, err := db.NewSelect().Model((*models.Job)(nil)).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = migrator.Rollback(ctx)
	require.NoError(t, err)

	_, err = db.NewSelect().Model((*models.Job)(nil)).Exists(ctx)
	assert.Error(t, err)
}

func TestSingleProcessingIndex(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	require.NoError(t, CreateSchema(ctx, db))
	require.NoError(t, CreateSchema(ctx, db))

	first := &models.PromptsFile{Filename: "a.txt", SHA256: "x", Path: "a", Status: models.PromptsFileStatusProcessing}
	_, err := db.NewInsert().Model(first).Exec(ctx)
	require.NoError(t, err)

	second := &models.PromptsFile{Filename: "b.txt", SHA256: "y", Path: "b", Status: models.PromptsFileStatusProcessing}
	_, err = db.NewInsert().Model(second).Exec(ctx)
	assert.Error(t, err)

	second.Status = models.PromptsFileStatusPending
	_, err = db.NewInsert().Model(second).Exec(ctx)
	assert.NoError(t, err)
}
