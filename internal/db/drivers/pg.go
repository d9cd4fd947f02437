package drivers

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PGDriver struct {
	db *bun.DB
}

func NewPGDriver(ctx context.Context, dsn string) (*PGDriver, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithApplicationName("sticker-server"),
		pgdriver.WithTimeout(10*time.Second),
	))
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, err
	}

	return &PGDriver{db: withQueryHook(bun.NewDB(sqldb, pgdialect.New()))}, nil
}

func (d *PGDriver) GetDB() *bun.DB {
	return d.db
}
