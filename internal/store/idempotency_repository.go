/**
 * @description
 * PostgreSQL implementation of the idempotency record store. A record is
 * written once per key, after the side-effecting work completed, and is
 * read-only afterwards; a duplicate save loses the claim silently.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: For the record model.
 */

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/veltabank/account-service/internal/domain"
)

// FindIdempotencyRecord retrieves a cached response by key. A missing record
// is reported as (nil, nil).
func (r *PostgresRepository) FindIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var record domain.IdempotencyRecord
	query := `
		SELECT idempotency_key, operation, status_code, response, created_at
		FROM idempotency_records WHERE idempotency_key = $1
	`
	err := r.db.QueryRow(ctx, query, key).Scan(
		&record.Key, &record.Operation, &record.StatusCode, &record.Response, &record.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// SaveIdempotencyRecord claims the key once. Losing the claim to a concurrent
// duplicate is reported as inserted=false, never as an error.
func (r *PostgresRepository) SaveIdempotencyRecord(ctx context.Context, record *domain.IdempotencyRecord) (bool, error) {
	record.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO idempotency_records (idempotency_key, operation, status_code, response, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	return claimRow(ctx, r.db, query,
		record.Key, record.Operation, record.StatusCode, record.Response, record.CreatedAt,
	)
}
