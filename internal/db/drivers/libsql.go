package drivers

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// LibSQLDriver talks to a remote libsql/Turso database. The wire dialect is
// sqlite so the same schema and queries apply.
type LibSQLDriver struct {
	db *bun.DB
}

func NewLibSQLDriver(ctx context.Context, dsn string) (*LibSQLDriver, error) {
	sqldb, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, err
	}

	if err := sqldb.PingContext(ctx); err != nil {
		return nil, err
	}

	return &LibSQLDriver{db: withQueryHook(bun.NewDB(sqldb, sqlitedialect.New()))}, nil
}

func (d *LibSQLDriver) GetDB() *bun.DB {
	return d.db
}
