package drivers

import (
	"os"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

type Driver interface {
	GetDB() *bun.DB
}

// withQueryHook attaches the verbose query logger when BUNDEBUG is set.
func withQueryHook(db *bun.DB) *bun.DB {
	if os.Getenv("BUNDEBUG") != "" {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}

	return db
}
