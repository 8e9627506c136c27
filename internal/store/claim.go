package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint breach.
const uniqueViolation = "23505"

// claimRow executes a uniqueness-backed INSERT and reports whether this caller
// won the row. Among any number of concurrent duplicate attempts exactly one
// insert succeeds; losers observe (false, nil) and must treat the conflict as
// success-equivalent. This is the single primitive behind idempotency records,
// bonus grants, and inbox entries.
func claimRow(ctx context.Context, db *pgxpool.Pool, sql string, args ...any) (bool, error) {
	_, err := db.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
