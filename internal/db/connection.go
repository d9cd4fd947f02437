package db

import (
	"context"
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/cozy-creator/sticker-server/internal/db/drivers"
)

func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is not configured")
	}

	switch cfg.DB.Driver {
	case config.DBDriverSQLite:
		return drivers.NewSQLiteDriver(ctx, cfg.DB.DSN)
	case config.DBDriverLibSQL:
		return drivers.NewLibSQLDriver(ctx, cfg.DB.DSN)
	case config.DBDriverPG:
		return drivers.NewPGDriver(ctx, cfg.DB.DSN)
	}

	return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
}
