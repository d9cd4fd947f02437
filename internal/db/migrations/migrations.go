package migrations

import (
	"context"
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

var tables = []interface{}{
	(*models.PromptsFile)(nil),
	(*models.GeneratedPromptFile)(nil),
	(*models.Job)(nil),
	(*models.Image)(nil),
	(*models.QueueEntry)(nil),
	(*models.AppConfig)(nil),
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS images_job_id_idx ON images (job_id)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
	`CREATE INDEX IF NOT EXISTS prompt_queue_status_idx ON prompt_queue (status, queued_at)`,
	// at most one prompts file may be processing at any instant
	`CREATE UNIQUE INDEX IF NOT EXISTS prompts_files_single_processing_idx ON prompts_files (status) WHERE status = 'processing'`,
}

// CreateSchema creates every table and index. It is idempotent.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, table := range tables {
		if _, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(tables[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	return nil
}
