package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/veltabank/account-service/internal/store"
)

func newTestService(t *testing.T) (*Service, *memoryStore, *fakeLedger, *fakePublisher) {
	t.Helper()
	mem := newMemoryStore()
	ledger := newFakeLedger()
	publisher := &fakePublisher{}
	svc := NewService(mem, mem, mem, ledger, publisher, 5000)
	return svc, mem, ledger, publisher
}

func TestOpenAccount_GrantsBonusOnce(t *testing.T) {
	svc, mem, ledger, publisher := newTestService(t)
	customerID := uuid.New()

	result, err := svc.OpenAccount(context.Background(), OpenAccountCommand{
		CustomerID:     customerID,
		ProductType:    "checking",
		Currency:       "USD",
		IdempotencyKey: "abc123",
	})
	if err != nil {
		t.Fatalf("OpenAccount returned error: %v", err)
	}
	if result.JournalID == "" {
		t.Fatal("expected a journal id for the bonus credit")
	}
	if len(result.AccountNumber) != 12 {
		t.Fatalf("expected a 12-digit account number, got %q", result.AccountNumber)
	}

	grant, err := mem.FindGrantByKey(context.Background(), "abc123:opening_bonus")
	if err != nil {
		t.Fatalf("FindGrantByKey returned error: %v", err)
	}
	if grant == nil {
		t.Fatal("expected a grant row under the derived bonus key")
	}
	if grant.Amount != 5000 {
		t.Fatalf("expected grant amount 5000, got %d", grant.Amount)
	}

	balance, err := mem.FindBalance(context.Background(), result.AccountID)
	if err != nil {
		t.Fatalf("FindBalance returned error: %v", err)
	}
	if balance.Ledger != 5000 || balance.Available != 5000 || balance.Hold != 0 {
		t.Fatalf("expected balance (5000, 5000, 0), got (%d, %d, %d)", balance.Ledger, balance.Available, balance.Hold)
	}
	if ledger.calls != 1 {
		t.Fatalf("expected one ledger credit, got %d", ledger.calls)
	}
	if got := publisher.published(); len(got) != 1 || got[0] != "account.opened" {
		t.Fatalf("expected one account.opened event, got %v", got)
	}
}

func TestOpenAccount_RepeatCallReturnsSameResultWithoutSecondCredit(t *testing.T) {
	svc, mem, ledger, _ := newTestService(t)
	customerID := uuid.New()
	cmd := OpenAccountCommand{
		CustomerID:     customerID,
		ProductType:    "checking",
		Currency:       "USD",
		IdempotencyKey: "repeat-key",
	}

	first, err := svc.OpenAccount(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first OpenAccount returned error: %v", err)
	}
	second, err := svc.OpenAccount(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second OpenAccount returned error: %v", err)
	}

	if first.AccountID != second.AccountID {
		t.Fatalf("expected identical account ids, got %s and %s", first.AccountID, second.AccountID)
	}
	if first.JournalID != second.JournalID {
		t.Fatalf("expected identical journal ids, got %q and %q", first.JournalID, second.JournalID)
	}
	if ledger.calls != 1 {
		t.Fatalf("expected exactly one ledger credit across retries, got %d", ledger.calls)
	}

	balance, _ := mem.FindBalance(context.Background(), first.AccountID)
	if balance.Available != 5000 {
		t.Fatalf("expected bonus applied once, got available=%d", balance.Available)
	}
}

func TestOpenAccount_BlankKeyNormalizesDeterministically(t *testing.T) {
	svc, mem, _, _ := newTestService(t)
	customerID := uuid.New()
	cmd := OpenAccountCommand{
		CustomerID:  customerID,
		ProductType: "checking",
		Currency:    "USD",
	}

	first, err := svc.OpenAccount(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first OpenAccount returned error: %v", err)
	}
	second, err := svc.OpenAccount(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second OpenAccount returned error: %v", err)
	}
	if first.AccountID != second.AccountID {
		t.Fatal("expected keyless duplicate opens to dedupe on the derived key")
	}

	derivedKey := "open:" + customerID.String() + ":checking:USD:opening_bonus"
	grant, _ := mem.FindGrantByKey(context.Background(), derivedKey)
	if grant == nil {
		t.Fatalf("expected grant under derived key %q", derivedKey)
	}
}

func TestOpenAccount_LedgerFailureIsRetryable(t *testing.T) {
	svc, mem, ledger, _ := newTestService(t)
	customerID := uuid.New()
	cmd := OpenAccountCommand{
		CustomerID:     customerID,
		ProductType:    "checking",
		Currency:       "USD",
		IdempotencyKey: "flaky",
	}

	ledger.failNext = errors.New("upstream timeout")
	_, err := svc.OpenAccount(context.Background(), cmd)
	var extErr *ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected an external error, got %v", err)
	}

	// No grant was claimed, so the retry runs the saga again and succeeds.
	if grant, _ := mem.FindGrantByKey(context.Background(), "flaky:opening_bonus"); grant != nil {
		t.Fatal("expected no grant row after a failed ledger credit")
	}

	result, err := svc.OpenAccount(context.Background(), cmd)
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	balance, _ := mem.FindBalance(context.Background(), result.AccountID)
	if balance.Available != 5000 {
		t.Fatalf("expected bonus applied exactly once after retry, got available=%d", balance.Available)
	}
}

func TestOpenAccount_ConcurrentDuplicatesApplyBonusOnce(t *testing.T) {
	svc, mem, _, _ := newTestService(t)
	customerID := uuid.New()
	cmd := OpenAccountCommand{
		CustomerID:     customerID,
		ProductType:    "checking",
		Currency:       "USD",
		IdempotencyKey: "race-key",
	}

	const concurrency = 8
	results := make([]*OpenAccountResult, concurrency)
	errs := make([]error, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.OpenAccount(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	for i := 0; i < concurrency; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d returned error: %v", i, errs[i])
		}
	}

	winner := results[0]
	for i := 1; i < concurrency; i++ {
		if results[i].AccountID != winner.AccountID {
			t.Fatalf("call %d returned account %s, winner was %s", i, results[i].AccountID, winner.AccountID)
		}
		if results[i].JournalID != winner.JournalID {
			t.Fatalf("call %d returned journal %q, winner was %q", i, results[i].JournalID, winner.JournalID)
		}
	}

	balance, _ := mem.FindBalance(context.Background(), winner.AccountID)
	if balance.Ledger != 5000 || balance.Available != 5000 {
		t.Fatalf("expected the bonus applied exactly once, got ledger=%d available=%d", balance.Ledger, balance.Available)
	}
}

func TestReserveHold_InsufficientFunds(t *testing.T) {
	svc, mem, _, _ := newTestService(t)
	accountID := uuid.New()
	if err := mem.InitZero(context.Background(), accountID); err != nil {
		t.Fatalf("InitZero returned error: %v", err)
	}
	if err := mem.ApplyDeltas(context.Background(), accountID, 1000, 1000, 0); err != nil {
		t.Fatalf("ApplyDeltas returned error: %v", err)
	}

	if _, err := svc.ReserveHold(context.Background(), accountID, 1500); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	hold, err := svc.ReserveHold(context.Background(), accountID, 600)
	if err != nil {
		t.Fatalf("ReserveHold returned error: %v", err)
	}
	if hold != 600 {
		t.Fatalf("expected hold 600, got %d", hold)
	}

	// The remaining available no longer covers a second 600 reservation.
	if _, err := svc.ReserveHold(context.Background(), accountID, 600); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds on second reservation, got %v", err)
	}
}

func TestReserveHold_ConcurrentReservationsNeverOversubscribe(t *testing.T) {
	svc, mem, _, _ := newTestService(t)
	accountID := uuid.New()
	_ = mem.InitZero(context.Background(), accountID)
	_ = mem.ApplyDeltas(context.Background(), accountID, 1000, 1000, 0)

	const workers = 10
	successes := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.ReserveHold(context.Background(), accountID, 300); err == nil {
				successes[i] = true
			}
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, ok := range successes {
		if ok {
			granted++
		}
	}
	if granted != 3 {
		t.Fatalf("expected exactly 3 reservations of 300 against 1000, got %d", granted)
	}

	balance, _ := mem.FindBalance(context.Background(), accountID)
	if balance.Available < 0 {
		t.Fatalf("available went negative: %d", balance.Available)
	}
	if balance.Available+balance.Hold != balance.Ledger {
		t.Fatalf("reservation broke the balance identity: ledger=%d available=%d hold=%d", balance.Ledger, balance.Available, balance.Hold)
	}
}

func TestReleaseHold_RejectsExcessRelease(t *testing.T) {
	svc, mem, _, _ := newTestService(t)
	accountID := uuid.New()
	_ = mem.InitZero(context.Background(), accountID)
	_ = mem.ApplyDeltas(context.Background(), accountID, 1000, 1000, 0)
	if _, err := svc.ReserveHold(context.Background(), accountID, 400); err != nil {
		t.Fatalf("ReserveHold returned error: %v", err)
	}

	if _, err := svc.ReleaseHold(context.Background(), accountID, 500); !errors.Is(err, store.ErrInvalidHoldState) {
		t.Fatalf("expected ErrInvalidHoldState, got %v", err)
	}

	hold, err := svc.ReleaseHold(context.Background(), accountID, 400)
	if err != nil {
		t.Fatalf("ReleaseHold returned error: %v", err)
	}
	if hold != 0 {
		t.Fatalf("expected hold 0 after full release, got %d", hold)
	}
}

func TestProvisionAccount_SameKeyConvergesOnOneAccount(t *testing.T) {
	svc, mem, _, _ := newTestService(t)
	customerID := uuid.New()

	first, err := svc.ProvisionAccount(context.Background(), "reg-1:acct", customerID, "checking", "USD")
	if err != nil {
		t.Fatalf("first ProvisionAccount returned error: %v", err)
	}
	second, err := svc.ProvisionAccount(context.Background(), "reg-1:acct", customerID, "checking", "USD")
	if err != nil {
		t.Fatalf("second ProvisionAccount returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the existing account %s, got %s", first, second)
	}
	accounts, err := mem.FindAccountsByCustomerID(context.Background(), customerID)
	if err != nil {
		t.Fatalf("FindAccountsByCustomerID returned error: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account row, got %d", len(accounts))
	}

	other, err := svc.ProvisionAccount(context.Background(), "reg-2:acct", customerID, "savings", "USD")
	if err != nil {
		t.Fatalf("ProvisionAccount for the second key returned error: %v", err)
	}
	if other == first {
		t.Fatal("expected a distinct account for a different key")
	}
}

func TestAccountNumberFromID_IsStableAndTwelveDigits(t *testing.T) {
	id := uuid.New()
	first := accountNumberFromID(id)
	second := accountNumberFromID(id)
	if first != second {
		t.Fatalf("expected deterministic account number, got %q and %q", first, second)
	}
	if len(first) != 12 {
		t.Fatalf("expected 12 digits, got %q", first)
	}
	for _, r := range first {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", first)
		}
	}
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	key := scope + ":" + subject
	l.counts[key]++
	return l.counts[key], 60, nil
}

func TestOpenAccount_RateLimited(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.SetOpenRateLimiter(&countingLimiter{}, 2)
	customerID := uuid.New()

	for i := 0; i < 2; i++ {
		cmd := OpenAccountCommand{
			CustomerID:     customerID,
			ProductType:    "checking",
			Currency:       "USD",
			IdempotencyKey: uuid.NewString(),
		}
		if _, err := svc.OpenAccount(context.Background(), cmd); err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
	}

	_, err := svc.OpenAccount(context.Background(), OpenAccountCommand{
		CustomerID:     customerID,
		ProductType:    "checking",
		Currency:       "USD",
		IdempotencyKey: uuid.NewString(),
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on the third call, got %v", err)
	}
}
