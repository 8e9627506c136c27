/**
 * @description
 * PostgreSQL implementation of the balance store. Reservations and releases are
 * expressed as single conditional UPDATE statements so that two concurrent
 * calls against the same account row are serialized by the database itself,
 * never by application code: among concurrent reservations only those the row
 * can legally fund succeed.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/google/uuid: For UUID handling.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/veltabank/account-service/internal/domain"
)

// InitZero creates the zero-valued balance row for a freshly created account.
// A second call for the same account fails with ErrBalanceAlreadyExists.
func (r *PostgresRepository) InitZero(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO account_balances (account_id, ledger, available, hold, updated_at)
		VALUES ($1, 0, 0, 0, $2)
	`
	_, err := r.db.Exec(ctx, query, accountID, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrBalanceAlreadyExists
		}
		return err
	}
	return nil
}

// FindBalance retrieves the balance row for an account.
func (r *PostgresRepository) FindBalance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error) {
	var balance domain.AccountBalance
	query := `
		SELECT account_id, ledger, available, hold, updated_at
		FROM account_balances WHERE account_id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&balance.AccountID, &balance.Ledger, &balance.Available, &balance.Hold, &balance.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// ReserveHold atomically moves amount from available into hold, only when
// available still covers it. Zero affected rows mean either the balance row is
// missing or the funds are insufficient; a follow-up probe distinguishes the two.
func (r *PostgresRepository) ReserveHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	var newHold int64
	query := `
		UPDATE account_balances
		SET hold = hold + $2, available = available - $2, updated_at = $3
		WHERE account_id = $1 AND available >= $2
		RETURNING hold
	`
	err := r.db.QueryRow(ctx, query, accountID, amount, time.Now().UTC()).Scan(&newHold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, r.classifyConditionalMiss(ctx, accountID, ErrInsufficientFunds)
		}
		return 0, err
	}
	return newHold, nil
}

// ReleaseHold atomically moves amount from hold back into available, only when
// the outstanding hold covers it.
func (r *PostgresRepository) ReleaseHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	var newHold int64
	query := `
		UPDATE account_balances
		SET hold = hold - $2, available = available + $2, updated_at = $3
		WHERE account_id = $1 AND hold >= $2
		RETURNING hold
	`
	err := r.db.QueryRow(ctx, query, accountID, amount, time.Now().UTC()).Scan(&newHold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, r.classifyConditionalMiss(ctx, accountID, ErrInvalidHoldState)
		}
		return 0, err
	}
	return newHold, nil
}

// ApplyDeltas applies an externally confirmed posting to the balance triple.
// No condition is attached: the upstream ledger's accounting already enforced
// the invariant when it posted the journal.
func (r *PostgresRepository) ApplyDeltas(ctx context.Context, accountID uuid.UUID, dLedger, dAvailable, dHold int64) error {
	query := `
		UPDATE account_balances
		SET ledger = ledger + $2, available = available + $3, hold = hold + $4, updated_at = $5
		WHERE account_id = $1
	`
	tag, err := r.db.Exec(ctx, query, accountID, dLedger, dAvailable, dHold, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// ApplyPostings applies all postings of one inbound message and seals the
// message's inbox row as processed inside a single transaction. A failure on
// any posting (or on the seal) rolls everything back, leaving the balances
// untouched and the inbox row re-admittable for the transport-level retry.
// A blank event id applies the postings without touching the inbox.
func (r *PostgresRepository) ApplyPostings(ctx context.Context, eventID string, postings []domain.Posting) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE account_balances
		SET ledger = ledger + $2, available = available + $3, hold = hold + $4, updated_at = $5
		WHERE account_id = $1
	`
	now := time.Now().UTC()
	for _, p := range postings {
		tag, err := tx.Exec(ctx, query, p.AccountID, p.DeltaLedger, p.DeltaAvailable, p.DeltaHold, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrBalanceNotFound
		}
	}

	if eventID != "" {
		sealQuery := `
			UPDATE inbox_events
			SET status = $2, processed_at = $3, error = NULL
			WHERE event_id = $1
		`
		if _, err := tx.Exec(ctx, sealQuery, eventID, domain.InboxStatusProcessed, now); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// classifyConditionalMiss decides whether a zero-row conditional update failed
// because the balance row does not exist or because its guard was not met.
func (r *PostgresRepository) classifyConditionalMiss(ctx context.Context, accountID uuid.UUID, guardErr error) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM account_balances WHERE account_id = $1)", accountID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBalanceNotFound
	}
	return guardErr
}
