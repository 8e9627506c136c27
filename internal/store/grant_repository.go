/**
 * @description
 * PostgreSQL implementation of the opening bonus grant store. The grant row is
 * the single serialization point that prevents the opening bonus from being
 * credited twice when the surrounding saga step is retried or raced: only the
 * caller whose insert wins the unique key may apply the matching credit.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: For the grant model.
 */

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/veltabank/account-service/internal/domain"
)

// FindGrantByKey retrieves an opening bonus grant by its idempotency key.
// A missing grant is reported as (nil, nil): absence is an expected state,
// not an error.
func (r *PostgresRepository) FindGrantByKey(ctx context.Context, key string) (*domain.OpeningBonusGrant, error) {
	var grant domain.OpeningBonusGrant
	query := `
		SELECT idempotency_key, account_id, journal_id, amount, currency, created_at
		FROM opening_bonus_grants WHERE idempotency_key = $1
	`
	err := r.db.QueryRow(ctx, query, key).Scan(
		&grant.Key, &grant.AccountID, &grant.JournalID, &grant.Amount, &grant.Currency, &grant.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// TryInsertGrant attempts the uniqueness-constrained insert on the key. It
// returns true only for the first successful insert; concurrent or retried
// callers get false and should re-read the winner's grant via FindGrantByKey.
func (r *PostgresRepository) TryInsertGrant(ctx context.Context, grant *domain.OpeningBonusGrant) (bool, error) {
	grant.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO opening_bonus_grants (idempotency_key, account_id, journal_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	return claimRow(ctx, r.db, query,
		grant.Key, grant.AccountID, grant.JournalID, grant.Amount, grant.Currency, grant.CreatedAt,
	)
}
