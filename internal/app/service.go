/**
 * @description
 * This file contains the core business logic for the account-service. The
 * `Service` struct owns account lifecycle and balance operations, including
 * the account-opening saga that grants the one-time opening bonus exactly
 * once despite retries, crashes, and concurrent duplicate calls.
 *
 * Key properties:
 * - The opening saga writes no local state before the external steps are
 *   confirmed, so a failure there is safely retryable from the top.
 * - The bonus grant row is the single serialization point: only the caller
 *   whose uniqueness-constrained insert wins may apply the local credit.
 * - Balance reservations and releases go through atomic conditional updates
 *   in the store; no lock is held in application code.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/ledgerclient: Request types for the external ledger capability.
 */

package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/veltabank/account-service/internal/domain"
	"github.com/veltabank/account-service/internal/store"
	"github.com/veltabank/account-service/pkg/ledgerclient"
)

const (
	openingBonusSuffix = ":opening_bonus"
	bonusReason        = "registration_bonus"
	bonusExternalRef   = "bonus:registration"

	eventsExchange = "bank.events"
)

var (
	// ErrRateLimited is returned when the opening rate limit for a customer
	// is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ExternalError wraps a failure of an external capability so the API layer
// can distinguish upstream outages from local errors. The triggering saga
// step is not marked complete, so the whole call is retryable.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ExternalError) Unwrap() error { return e.Err }

// LedgerCreditor is the external ledger-credit capability. It guarantees
// at-most-once posting per idempotency key.
type LedgerCreditor interface {
	CreditAccount(ctx context.Context, idempotencyKey string, req ledgerclient.CreditRequest) (string, error)
}

// EventPublisher publishes domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RateLimiter consumes one unit of a fixed-window rate limit. A nil limiter
// disables limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides account lifecycle and balance operations.
type Service struct {
	accounts  store.AccountRepository
	balances  store.BalanceRepository
	grants    store.GrantRepository
	ledger    LedgerCreditor
	publisher EventPublisher

	bonusAmount int64

	limiter          RateLimiter
	openRateLimit    int
	openRateInterval time.Duration
}

// NewService creates a new account service instance.
func NewService(
	accounts store.AccountRepository,
	balances store.BalanceRepository,
	grants store.GrantRepository,
	ledger LedgerCreditor,
	publisher EventPublisher,
	bonusAmount int64,
) *Service {
	return &Service{
		accounts:    accounts,
		balances:    balances,
		grants:      grants,
		ledger:      ledger,
		publisher:   publisher,
		bonusAmount: bonusAmount,
	}
}

// SetOpenRateLimiter enables per-customer rate limiting of the opening saga.
func (s *Service) SetOpenRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.limiter = limiter
	s.openRateLimit = limitPerMinute
	s.openRateInterval = time.Minute
}

// OpenAccountCommand is the input to the account-opening saga.
type OpenAccountCommand struct {
	CustomerID     uuid.UUID
	ProductType    string
	Currency       string
	IdempotencyKey string
	InitiatedBy    string
}

// OpenAccountResult is the terminal, cacheable result of the opening saga.
// Repeating the call with the same idempotency key returns an identical result.
type OpenAccountResult struct {
	AccountID     uuid.UUID `json:"account_id"`
	AccountNumber string    `json:"account_number"`
	JournalID     string    `json:"journal_id"`
	Status        string    `json:"status"`
}

// OpenAccount opens an account and credits the one-time opening bonus. The
// bonus key derived from the caller's idempotency key dedupes the whole saga:
// the grant row under that key proves the bonus was already applied, and the
// external ledger dedupes the credit posting under the same key, so neither
// retries nor races can double-post.
func (s *Service) OpenAccount(ctx context.Context, cmd OpenAccountCommand) (*OpenAccountResult, error) {
	initiatedBy := cmd.InitiatedBy
	if initiatedBy == "" {
		initiatedBy = "system"
	}

	if err := s.consumeOpenRateLimit(ctx, cmd.CustomerID); err != nil {
		return nil, err
	}

	baseKey := normalizeOpenKey(cmd.IdempotencyKey, cmd.CustomerID, cmd.ProductType, cmd.Currency)
	bonusKey := baseKey + openingBonusSuffix

	// 1. A pre-existing grant means the saga already completed for this key:
	// return the recorded result without touching anything.
	existing, err := s.grants.FindGrantByKey(ctx, bonusKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up bonus grant: %w", err)
	}
	if existing != nil {
		return s.resultFromGrant(ctx, existing), nil
	}

	// 2. Create the account and its zero balance. Nothing before this point
	// wrote local state, so a failure here aborts cleanly.
	account := &domain.Account{
		ID:          uuid.New(),
		CustomerID:  cmd.CustomerID,
		ProductType: cmd.ProductType,
		Currency:    cmd.Currency,
		Status:      "active",
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if err := s.balances.InitZero(ctx, account.ID); err != nil && !errors.Is(err, store.ErrBalanceAlreadyExists) {
		return nil, fmt.Errorf("failed to init balance: %w", err)
	}

	// 3. Post the bonus on the external ledger, keyed by bonusKey. A re-entry
	// of this step cannot double-post: the ledger dedupes per key.
	journalID, err := s.ledger.CreditAccount(ctx, bonusKey, ledgerclient.CreditRequest{
		AccountID:   account.ID.String(),
		Currency:    cmd.Currency,
		Amount:      s.bonusAmount,
		InitiatedBy: initiatedBy,
		ExternalRef: bonusExternalRef,
		Reason:      bonusReason,
		CustomerID:  cmd.CustomerID.String(),
	})
	if err != nil {
		return nil, &ExternalError{Op: "ledger credit", Err: err}
	}

	// 4. Claim the grant. Only the winner applies the local balance credit;
	// a lost claim means a concurrent duplicate already applied it.
	grant := &domain.OpeningBonusGrant{
		Key:       bonusKey,
		AccountID: account.ID,
		JournalID: journalID,
		Amount:    s.bonusAmount,
		Currency:  cmd.Currency,
	}
	inserted, err := s.grants.TryInsertGrant(ctx, grant)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bonus grant: %w", err)
	}

	if inserted {
		if err := s.balances.ApplyDeltas(ctx, account.ID, s.bonusAmount, s.bonusAmount, 0); err != nil {
			return nil, fmt.Errorf("failed to apply bonus credit: %w", err)
		}
		s.publishAccountOpened(ctx, account, journalID)
		return &OpenAccountResult{
			AccountID:     account.ID,
			AccountNumber: accountNumberFromID(account.ID),
			JournalID:     journalID,
			Status:        "opened",
		}, nil
	}

	// Race: another request won the grant. Re-read and return the real result.
	winner, err := s.grants.FindGrantByKey(ctx, bonusKey)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read bonus grant: %w", err)
	}
	if winner == nil {
		return nil, errors.New("opening bonus grant missing after concurrent insert")
	}
	return s.resultFromGrant(ctx, winner), nil
}

// CreateAccount creates an account with a zero balance outside the opening
// saga. This path carries no idempotency key of its own; callers that need
// retry safety must go through OpenAccount.
func (s *Service) CreateAccount(ctx context.Context, customerID uuid.UUID, productType, currency string) (*domain.Account, error) {
	account := &domain.Account{
		ID:          uuid.New(),
		CustomerID:  customerID,
		ProductType: productType,
		Currency:    currency,
		Status:      "active",
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if err := s.balances.InitZero(ctx, account.ID); err != nil && !errors.Is(err, store.ErrBalanceAlreadyExists) {
		return nil, fmt.Errorf("failed to init balance: %w", err)
	}
	return account, nil
}

// ProvisionAccount creates the account named by the idempotency key. The
// account id is derived deterministically from the key, so re-entered and
// concurrent invocations carrying the same key converge on one row: the
// insert is claim-style and losers of a race simply observe the winner's row.
// The registration activation saga uses this as its account-creation
// capability, one key per registration.
func (s *Service) ProvisionAccount(ctx context.Context, idempotencyKey string, customerID uuid.UUID, productType, currency string) (uuid.UUID, error) {
	id := uuid.New()
	if idempotencyKey != "" {
		id = accountIDForKey(idempotencyKey)
	}
	account := &domain.Account{
		ID:          id,
		CustomerID:  customerID,
		ProductType: productType,
		Currency:    currency,
		Status:      "active",
	}
	if _, err := s.accounts.TryCreateAccount(ctx, account); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create account: %w", err)
	}
	if err := s.balances.InitZero(ctx, id); err != nil && !errors.Is(err, store.ErrBalanceAlreadyExists) {
		return uuid.Nil, fmt.Errorf("failed to init balance: %w", err)
	}
	return id, nil
}

// accountIDForKey maps a provisioning idempotency key onto a stable UUIDv5,
// so every invocation carrying the same key names the same account row.
func accountIDForKey(key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
}

// GetAccount retrieves an account by id.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.accounts.FindAccountByID(ctx, accountID)
}

// GetBalance retrieves the balance triple for an account.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error) {
	return s.balances.FindBalance(ctx, accountID)
}

// ReserveHold reserves amount against the account's available balance and
// returns the new hold. The reservation is a single conditional update in the
// store, so concurrent reservations against one account are serialized there.
func (s *Service) ReserveHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	return s.balances.ReserveHold(ctx, accountID, amount)
}

// ReleaseHold releases amount from the account's outstanding hold.
func (s *Service) ReleaseHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("release amount must be positive, got %d", amount)
	}
	return s.balances.ReleaseHold(ctx, accountID, amount)
}

func (s *Service) consumeOpenRateLimit(ctx context.Context, customerID uuid.UUID) error {
	if s.limiter == nil || s.openRateLimit <= 0 {
		return nil
	}
	count, _, err := s.limiter.ConsumeRateLimit(ctx, "open_account", customerID.String(), s.openRateLimit, s.openRateInterval)
	if err != nil {
		// Limiter unavailability must not block account opening.
		log.Printf("level=warn component=account_service msg=\"rate limiter unavailable; allowing request\" customer_id=%s err=%v", customerID, err)
		return nil
	}
	if count > s.openRateLimit {
		return ErrRateLimited
	}
	return nil
}

// resultFromGrant rebuilds the terminal opening result from a recorded grant.
func (s *Service) resultFromGrant(ctx context.Context, grant *domain.OpeningBonusGrant) *OpenAccountResult {
	accountNumber := ""
	if account, err := s.accounts.FindAccountByID(ctx, grant.AccountID); err == nil {
		accountNumber = accountNumberFromID(account.ID)
	}
	return &OpenAccountResult{
		AccountID:     grant.AccountID,
		AccountNumber: accountNumber,
		JournalID:     grant.JournalID,
		Status:        "opened",
	}
}

func (s *Service) publishAccountOpened(ctx context.Context, account *domain.Account, journalID string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, eventsExchange, "account.opened", domain.AccountOpenedEvent{
		AccountID:  account.ID,
		CustomerID: account.CustomerID,
		Currency:   account.Currency,
		JournalID:  journalID,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=account_service msg=\"failed to publish account.opened\" account_id=%s err=%v", account.ID, err)
	}
}

// normalizeOpenKey falls back to a deterministic key when the caller supplied
// none, so even keyless duplicate opens for the same logical request dedupe.
func normalizeOpenKey(key string, customerID uuid.UUID, productType, currency string) string {
	if key != "" {
		return key
	}
	if productType == "" {
		productType = "unknown"
	}
	if currency == "" {
		currency = "XXX"
	}
	return fmt.Sprintf("open:%s:%s:%s", customerID, productType, currency)
}

// accountNumberFromID derives a stable 12-digit account number from the
// account UUID.
func accountNumberFromID(id uuid.UUID) string {
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return fmt.Sprintf("%012d", (hi^lo)%1_000_000_000_000)
}
