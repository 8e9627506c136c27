/**
 * @description
 * PostgreSQL implementation of the registration store. The activation saga
 * persists one output field per mutation, so the methods here are narrow
 * single-column updates rather than a whole-row save: whatever was obtained
 * from an external capability is durable the moment the call returns.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the registration model.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/veltabank/account-service/internal/domain"
)

// CreateRegistration inserts a new registration intent in its initial state.
func (r *PostgresRepository) CreateRegistration(ctx context.Context, intent *domain.RegistrationIntent) error {
	now := time.Now().UTC()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	query := `
		INSERT INTO registration_intents (id, email, phone, channel, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		intent.ID, intent.Email, intent.Phone, intent.Channel, intent.State,
		intent.CreatedAt, intent.UpdatedAt,
	)
	return err
}

// FindRegistrationByID retrieves a registration intent by its ID.
func (r *PostgresRepository) FindRegistrationByID(ctx context.Context, id uuid.UUID) (*domain.RegistrationIntent, error) {
	var intent domain.RegistrationIntent
	query := `
		SELECT id, email, phone, channel, state, activation_ref, customer_id,
		       primary_account_id, bonus_journal_id, activated_at, created_at, updated_at
		FROM registration_intents WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&intent.ID, &intent.Email, &intent.Phone, &intent.Channel, &intent.State,
		&intent.ActivationRef, &intent.CustomerID, &intent.PrimaryAccountID,
		&intent.BonusJournalID, &intent.ActivatedAt, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// UpdateRegistrationState moves the registration to a new state.
func (r *PostgresRepository) UpdateRegistrationState(ctx context.Context, id uuid.UUID, state string) error {
	return r.execRegistrationUpdate(ctx,
		"UPDATE registration_intents SET state = $2, updated_at = $3 WHERE id = $1",
		id, state, time.Now().UTC(),
	)
}

// BeginActivation stamps the stable activation reference and moves the
// registration into ACTIVATING in a single write.
func (r *PostgresRepository) BeginActivation(ctx context.Context, id uuid.UUID, activationRef string) error {
	return r.execRegistrationUpdate(ctx,
		"UPDATE registration_intents SET state = $2, activation_ref = $3, updated_at = $4 WHERE id = $1",
		id, domain.RegistrationActivating, activationRef, time.Now().UTC(),
	)
}

// SetCustomerID persists the customer-creation output.
func (r *PostgresRepository) SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.execRegistrationUpdate(ctx,
		"UPDATE registration_intents SET customer_id = $2, updated_at = $3 WHERE id = $1",
		id, customerID, time.Now().UTC(),
	)
}

// SetPrimaryAccountID persists the account-creation output.
func (r *PostgresRepository) SetPrimaryAccountID(ctx context.Context, id uuid.UUID, accountID string) error {
	return r.execRegistrationUpdate(ctx,
		"UPDATE registration_intents SET primary_account_id = $2, updated_at = $3 WHERE id = $1",
		id, accountID, time.Now().UTC(),
	)
}

// SetBonusJournalID persists the ledger-credit output.
func (r *PostgresRepository) SetBonusJournalID(ctx context.Context, id uuid.UUID, journalID string) error {
	return r.execRegistrationUpdate(ctx,
		"UPDATE registration_intents SET bonus_journal_id = $2, updated_at = $3 WHERE id = $1",
		id, journalID, time.Now().UTC(),
	)
}

// MarkActivated records the terminal ACTIVATED state with its timestamp.
func (r *PostgresRepository) MarkActivated(ctx context.Context, id uuid.UUID, activatedAt time.Time) error {
	return r.execRegistrationUpdate(ctx,
		"UPDATE registration_intents SET state = $2, activated_at = $3, updated_at = $4 WHERE id = $1",
		id, domain.RegistrationActivated, activatedAt, time.Now().UTC(),
	)
}

func (r *PostgresRepository) execRegistrationUpdate(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
