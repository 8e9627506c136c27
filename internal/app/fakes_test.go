package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veltabank/account-service/internal/domain"
	"github.com/veltabank/account-service/internal/store"
	"github.com/veltabank/account-service/pkg/customerclient"
	"github.com/veltabank/account-service/pkg/ledgerclient"
)

// memoryStore is an in-memory implementation of the store interfaces used by
// the app-layer tests. Mutations take the same single-row-atomic shape as the
// SQL implementation so concurrency tests exercise the real guard conditions.
type memoryStore struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]domain.Account
	balances      map[uuid.UUID]*domain.AccountBalance
	grants        map[string]domain.OpeningBonusGrant
	inbox         map[string]*domain.InboxEvent
	idempotency   map[string]domain.IdempotencyRecord
	registrations map[uuid.UUID]*domain.RegistrationIntent
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:      make(map[uuid.UUID]domain.Account),
		balances:      make(map[uuid.UUID]*domain.AccountBalance),
		grants:        make(map[string]domain.OpeningBonusGrant),
		inbox:         make(map[string]*domain.InboxEvent),
		idempotency:   make(map[string]domain.IdempotencyRecord),
		registrations: make(map[uuid.UUID]*domain.RegistrationIntent),
	}
}

func (m *memoryStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = *account
	return nil
}

func (m *memoryStore) TryCreateAccount(ctx context.Context, account *domain.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return false, nil
	}
	m.accounts[account.ID] = *account
	return true, nil
}

func (m *memoryStore) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &account, nil
}

func (m *memoryStore) FindAccountsByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, account := range m.accounts {
		if account.CustomerID == customerID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (m *memoryStore) InitZero(ctx context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[accountID]; ok {
		return store.ErrBalanceAlreadyExists
	}
	m.balances[accountID] = &domain.AccountBalance{AccountID: accountID}
	return nil
}

func (m *memoryStore) FindBalance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return nil, store.ErrBalanceNotFound
	}
	copied := *balance
	return &copied, nil
}

func (m *memoryStore) ReserveHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return 0, store.ErrBalanceNotFound
	}
	if balance.Available < amount {
		return 0, store.ErrInsufficientFunds
	}
	balance.Available -= amount
	balance.Hold += amount
	return balance.Hold, nil
}

func (m *memoryStore) ReleaseHold(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return 0, store.ErrBalanceNotFound
	}
	if balance.Hold < amount {
		return 0, store.ErrInvalidHoldState
	}
	balance.Hold -= amount
	balance.Available += amount
	return balance.Hold, nil
}

func (m *memoryStore) ApplyDeltas(ctx context.Context, accountID uuid.UUID, dLedger, dAvailable, dHold int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return store.ErrBalanceNotFound
	}
	balance.Ledger += dLedger
	balance.Available += dAvailable
	balance.Hold += dHold
	return nil
}

func (m *memoryStore) ApplyPostings(ctx context.Context, eventID string, postings []domain.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range postings {
		if _, ok := m.balances[p.AccountID]; !ok {
			return store.ErrBalanceNotFound
		}
	}
	for _, p := range postings {
		balance := m.balances[p.AccountID]
		balance.Ledger += p.DeltaLedger
		balance.Available += p.DeltaAvailable
		balance.Hold += p.DeltaHold
	}
	// Seal under the same lock as the deltas, mirroring the SQL
	// implementation's single transaction.
	if eventID != "" {
		if row, ok := m.inbox[eventID]; ok {
			row.Status = domain.InboxStatusProcessed
			row.Error = nil
		}
	}
	return nil
}

func (m *memoryStore) FindGrantByKey(ctx context.Context, key string) (*domain.OpeningBonusGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.grants[key]
	if !ok {
		return nil, nil
	}
	return &grant, nil
}

func (m *memoryStore) TryInsertGrant(ctx context.Context, grant *domain.OpeningBonusGrant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[grant.Key]; ok {
		return false, nil
	}
	m.grants[grant.Key] = *grant
	return true, nil
}

func (m *memoryStore) TryBegin(ctx context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eventID == "" {
		return true, nil
	}
	row, ok := m.inbox[eventID]
	if !ok {
		m.inbox[eventID] = &domain.InboxEvent{EventID: eventID, EventType: eventType, Status: domain.InboxStatusReceived}
		return true, nil
	}
	return row.Status != domain.InboxStatusProcessed, nil
}

func (m *memoryStore) MarkFailedSafe(ctx context.Context, eventID, eventType, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eventID == "" {
		return
	}
	row, ok := m.inbox[eventID]
	if !ok {
		row = &domain.InboxEvent{EventID: eventID, EventType: eventType}
		m.inbox[eventID] = row
	}
	row.Status = domain.InboxStatusFailed
	row.Error = &errMsg
}

func (m *memoryStore) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, row := range m.inbox {
		if row.Status == domain.InboxStatusProcessed {
			delete(m.inbox, id)
			purged++
		}
	}
	return purged, nil
}

func (m *memoryStore) FindIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *memoryStore) SaveIdempotencyRecord(ctx context.Context, record *domain.IdempotencyRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idempotency[record.Key]; ok {
		return false, nil
	}
	m.idempotency[record.Key] = *record
	return true, nil
}

func (m *memoryStore) CreateRegistration(ctx context.Context, intent *domain.RegistrationIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *intent
	m.registrations[intent.ID] = &copied
	return nil
}

func (m *memoryStore) FindRegistrationByID(ctx context.Context, id uuid.UUID) (*domain.RegistrationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.registrations[id]
	if !ok {
		return nil, store.ErrRegistrationNotFound
	}
	copied := *intent
	return &copied, nil
}

func (m *memoryStore) UpdateRegistrationState(ctx context.Context, id uuid.UUID, state string) error {
	return m.mutateRegistration(id, func(intent *domain.RegistrationIntent) {
		intent.State = state
	})
}

func (m *memoryStore) BeginActivation(ctx context.Context, id uuid.UUID, activationRef string) error {
	return m.mutateRegistration(id, func(intent *domain.RegistrationIntent) {
		intent.State = domain.RegistrationActivating
		intent.ActivationRef = &activationRef
	})
}

func (m *memoryStore) SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return m.mutateRegistration(id, func(intent *domain.RegistrationIntent) {
		intent.CustomerID = &customerID
	})
}

func (m *memoryStore) SetPrimaryAccountID(ctx context.Context, id uuid.UUID, accountID string) error {
	return m.mutateRegistration(id, func(intent *domain.RegistrationIntent) {
		intent.PrimaryAccountID = &accountID
	})
}

func (m *memoryStore) SetBonusJournalID(ctx context.Context, id uuid.UUID, journalID string) error {
	return m.mutateRegistration(id, func(intent *domain.RegistrationIntent) {
		intent.BonusJournalID = &journalID
	})
}

func (m *memoryStore) MarkActivated(ctx context.Context, id uuid.UUID, activatedAt time.Time) error {
	return m.mutateRegistration(id, func(intent *domain.RegistrationIntent) {
		intent.State = domain.RegistrationActivated
		intent.ActivatedAt = &activatedAt
	})
}

func (m *memoryStore) mutateRegistration(id uuid.UUID, mutate func(*domain.RegistrationIntent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.registrations[id]
	if !ok {
		return store.ErrRegistrationNotFound
	}
	mutate(intent)
	return nil
}

// fakeLedger records ledger credit calls and dedupes them per idempotency key
// the way the real ledger does.
type fakeLedger struct {
	mu       sync.Mutex
	journals map[string]string
	calls    int
	failNext error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{journals: make(map[string]string)}
}

func (f *fakeLedger) CreditAccount(ctx context.Context, idempotencyKey string, req ledgerclient.CreditRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	f.calls++
	if journalID, ok := f.journals[idempotencyKey]; ok {
		return journalID, nil
	}
	journalID := "jrn_" + uuid.NewString()[:8]
	f.journals[idempotencyKey] = journalID
	return journalID, nil
}

type fakeCustomers struct {
	mu        sync.Mutex
	customers map[string]string
	calls     int
	failNext  error
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{customers: make(map[string]string)}
}

func (f *fakeCustomers) CreateCustomer(ctx context.Context, idempotencyKey string, req customerclient.CreateCustomerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	f.calls++
	if customerID, ok := f.customers[idempotencyKey]; ok {
		return customerID, nil
	}
	customerID := uuid.NewString()
	f.customers[idempotencyKey] = customerID
	return customerID, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, routingKey)
	return nil
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}
