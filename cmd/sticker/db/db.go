package db

import (
	"context"
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/db"
	"github.com/cozy-creator/sticker-server/internal/db/migrations"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "db",
	Short: "Utility for database management",
}

var migrationCmd = &cobra.Command{
	Use:   "migration",
	Short: "Utility for handling database migrations",
}

func init() {
	migrationCmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "create migration tables",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				return migrator.Init(ctx)
			}),
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "migrate database",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				if err := migrator.Lock(ctx); err != nil {
					return err
				}
				defer migrator.Unlock(ctx) //nolint:errcheck

				group, err := migrator.Migrate(ctx)
				if err != nil {
					return err
				}
				if group.IsZero() {
					fmt.Printf("there are no new migrations to run (database is up to date)\n")
					return nil
				}
				fmt.Printf("migrated to %s\n", group)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "rollback the last migration group",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				if err := migrator.Lock(ctx); err != nil {
					return err
				}
				defer migrator.Unlock(ctx) //nolint:errcheck

				group, err := migrator.Rollback(ctx)
				if err != nil {
					return err
				}
				if group.IsZero() {
					fmt.Printf("there are no groups to roll back\n")
					return nil
				}
				fmt.Printf("rolled back %s\n", group)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "lock",
			Short: "Lock the database",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				if err := migrator.Lock(ctx); err != nil {
					return err
				}
				fmt.Printf("locked\n")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "unlock",
			Short: "Unlock the database",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				if err := migrator.Unlock(ctx); err != nil {
					return err
				}
				fmt.Printf("unlocked\n")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "create-go <name>",
			Short: "Create a Go migration file",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, args []string) error {
				file, err := migrator.CreateGoMigration(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("created migration file %s in %s\n", file.Name, file.Path)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the status of the migrations",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				status, err := migrator.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("migrations: %s\n", status)
				fmt.Printf("unapplied migrations: %s\n", status.Unapplied())
				fmt.Printf("last migration group: %s\n", status.LastGroup())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "mark-applied",
			Short: "Mark all migrations as applied without actually running them",
			RunE: withMigrator(func(ctx context.Context, migrator *migrate.Migrator, _ []string) error {
				group, err := migrator.Migrate(ctx, migrate.WithNopMigration())
				if err != nil {
					return err
				}
				if group.IsZero() {
					fmt.Printf("there are no new migrations to mark as applied\n")
					return nil
				}
				fmt.Printf("marked as applied %s\n", group)
				return nil
			}),
		},
	)

	Cmd.AddCommand(migrationCmd)
}

// withMigrator opens the configured database for the duration of one
// migration command. The connection is made lazily so the config loaded by
// the root command is in effect.
func withMigrator(fn func(ctx context.Context, migrator *migrate.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		driver, err := db.NewConnection(ctx, config.MustGetConfig())
		if err != nil {
			return err
		}

		conn := driver.GetDB()
		defer conn.Close()

		conn.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithEnabled(false),
			bundebug.FromEnv(),
		))

		return fn(ctx, newMigrator(conn), args)
	}
}

func newMigrator(conn *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(conn, migrations.Migrations)
}
