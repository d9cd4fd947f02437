package repository

import (
	"context"
	"database/sql"
	"errors"
)

type Repository[T any] interface {
	Create(ctx context.Context, arg *T) (*T, error)
	GetByID(ctx context.Context, id int64) (*T, error)
	DeleteByID(ctx context.Context, id int64) error
}

var ErrNotFound = errors.New("record not found")

// notFound maps bun's sql.ErrNoRows to ErrNotFound so callers never depend on
// database/sql directly.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	return err
}
