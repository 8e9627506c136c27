/**
 * @description
 * This file contains the PostgreSQL-backed implementation of the account store.
 * A single PostgresRepository struct satisfies all of the repository interfaces
 * in this package; the balance, grant, inbox, idempotency, and registration
 * methods live in their own files alongside this one.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veltabank/account-service/internal/domain"
)

// PostgresRepository is the concrete implementation of the repository
// interfaces for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new account row. The caller is expected to follow up
// with BalanceRepository.InitZero; the two inserts are deliberately separate so
// the balance row creation keeps its own already-exists semantics.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
	account.OpenedAt = now
	account.UpdatedAt = now
	query := `
		INSERT INTO accounts (id, customer_id, product_type, currency, status, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.CustomerID, account.ProductType, account.Currency,
		account.Status, account.OpenedAt, account.UpdatedAt,
	)
	return err
}

// TryCreateAccount inserts the account only when its id is not already taken,
// mapping the primary-key conflict to inserted=false. Callers that derive the
// id deterministically use this to make account creation re-runnable.
func (r *PostgresRepository) TryCreateAccount(ctx context.Context, account *domain.Account) (bool, error) {
	now := time.Now().UTC()
	account.OpenedAt = now
	account.UpdatedAt = now
	query := `
		INSERT INTO accounts (id, customer_id, product_type, currency, status, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return claimRow(ctx, r.db, query,
		account.ID, account.CustomerID, account.ProductType, account.Currency,
		account.Status, account.OpenedAt, account.UpdatedAt,
	)
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, customer_id, product_type, currency, status, opened_at, updated_at
		FROM accounts WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.CustomerID, &account.ProductType, &account.Currency,
		&account.Status, &account.OpenedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountsByCustomerID lists all accounts belonging to a customer.
func (r *PostgresRepository) FindAccountsByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	query := `
		SELECT id, customer_id, product_type, currency, status, opened_at, updated_at
		FROM accounts WHERE customer_id = $1 ORDER BY opened_at
	`
	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID, &account.CustomerID, &account.ProductType, &account.Currency,
			&account.Status, &account.OpenedAt, &account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
