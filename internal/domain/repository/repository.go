package repository

import (
	"context"
	"database/sql"
)

// queryExecer is the common surface of *sql.DB and *sql.Tx the repositories
// need for writes that may or may not run inside a caller-owned transaction.
type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(db *sql.DB, tx *sql.Tx) queryExecer {
	if tx != nil {
		return tx
	}
	return db
}
