/**
 * @description
 * This file defines the data access contracts for the account-service. Each
 * persisted store is expressed as its own small interface so the orchestrators
 * declare exactly the stores they depend on and tests can substitute in-memory
 * fakes. The concrete PostgreSQL implementation lives alongside in this package.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/veltabank/account-service/internal/domain"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrBalanceNotFound      = errors.New("balance not found")
	ErrBalanceAlreadyExists = errors.New("balance already exists")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidHoldState     = errors.New("release exceeds current hold")
	ErrRegistrationNotFound = errors.New("registration not found")
)

// AccountRepository manages account identity rows.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	// TryCreateAccount inserts the account only when its id is not already
	// present, so callers that derive the id deterministically can re-run
	// creation safely. Returns true for the caller that performed the insert.
	TryCreateAccount(ctx context.Context, account *domain.Account) (bool, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountsByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
}

// BalanceRepository exposes the balance row through atomic operations only.
// ReserveHold and ReleaseHold are single conditional updates: the storage
// engine serializes concurrent calls against the same row, so no application
// lock is needed.
type BalanceRepository interface {
	InitZero(ctx context.Context, accountID uuid.UUID) error
	FindBalance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error)
	// ReserveHold increments hold and decrements available by amount, only
	// when available >= amount. Zero affected rows surface as
	// ErrInsufficientFunds, or ErrBalanceNotFound when no row exists.
	ReserveHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error)
	// ReleaseHold is the symmetric conditional update gated on hold >= amount,
	// failing with ErrInvalidHoldState.
	ReleaseHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error)
	// ApplyDeltas is the unconditional additive update used only for
	// externally confirmed postings; the upstream ledger already guarantees
	// the invariant, so it is not re-checked here.
	ApplyDeltas(ctx context.Context, accountID uuid.UUID, dLedger, dAvailable, dHold int64) error
	// ApplyPostings applies every posting of one message and seals the
	// message's inbox row to processed, all in a single transaction: either
	// the deltas land AND the event is marked done, or neither happened and
	// transport redelivery re-runs the whole message. A blank event id
	// applies the deltas without sealing anything.
	ApplyPostings(ctx context.Context, eventID string, postings []domain.Posting) error
}

// GrantRepository claims the one-time opening bonus slot per idempotency key.
type GrantRepository interface {
	FindGrantByKey(ctx context.Context, key string) (*domain.OpeningBonusGrant, error)
	// TryInsertGrant returns true only for the caller that performs the first
	// successful insert; every loser receives false and must not apply the
	// balance credit the grant guards.
	TryInsertGrant(ctx context.Context, grant *domain.OpeningBonusGrant) (bool, error)
}

// InboxRepository deduplicates inbound asynchronous messages by event id.
type InboxRepository interface {
	// TryBegin records first sight of an event id. It returns true when the
	// event may be processed: on the first insert, or when an existing row is
	// not yet processed (so a message stuck mid-processing can be retried).
	// A blank event id returns true: no dedup is possible.
	TryBegin(ctx context.Context, eventID, eventType string) (bool, error)
	// MarkFailedSafe records a processing failure and never returns an error;
	// the event id may be unknown or blank.
	MarkFailedSafe(ctx context.Context, eventID, eventType, errMsg string)
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdempotencyRepository caches terminal operation responses by caller key.
type IdempotencyRepository interface {
	FindIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// SaveIdempotencyRecord claims the key once; a concurrent duplicate save
	// is conflict-as-success and reported as inserted=false.
	SaveIdempotencyRecord(ctx context.Context, record *domain.IdempotencyRecord) (bool, error)
}

// RegistrationRepository persists onboarding saga state. Each Set* mutation
// writes a single output field and bumps updated_at, so every completed
// sub-step is durable before the saga proceeds.
type RegistrationRepository interface {
	CreateRegistration(ctx context.Context, intent *domain.RegistrationIntent) error
	FindRegistrationByID(ctx context.Context, id uuid.UUID) (*domain.RegistrationIntent, error)
	UpdateRegistrationState(ctx context.Context, id uuid.UUID, state string) error
	BeginActivation(ctx context.Context, id uuid.UUID, activationRef string) error
	SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	SetPrimaryAccountID(ctx context.Context, id uuid.UUID, accountID string) error
	SetBonusJournalID(ctx context.Context, id uuid.UUID, journalID string) error
	MarkActivated(ctx context.Context, id uuid.UUID, activatedAt time.Time) error
}
