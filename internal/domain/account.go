/**
 * @description
 * This file defines the core domain models for accounts and balances. These structs
 * map directly to the database tables managed by the store package and are shared
 * by the application services, API handlers, and event consumers.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For UUID identifiers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a customer account. Its identity is immutable after creation.
type Account struct {
	ID          uuid.UUID `json:"id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ProductType string    `json:"product_type"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	OpenedAt    time.Time `json:"opened_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AccountBalance is the 1:1 balance record for an account. All amounts are in
// minor units (e.g. cents). Invariant: available >= 0 and hold >= 0 at all times.
// Mutated only through the atomic store operations (reserve, release, apply deltas).
type AccountBalance struct {
	AccountID uuid.UUID `json:"account_id"`
	Ledger    int64     `json:"ledger"`
	Available int64     `json:"available"`
	Hold      int64     `json:"hold"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpeningBonusGrant records that the one-time opening bonus was applied for a
// given idempotency key. The existence of a row is the proof of application;
// it is written exactly once per key via a uniqueness-constrained insert.
type OpeningBonusGrant struct {
	Key       string    `json:"key"`
	AccountID uuid.UUID `json:"account_id"`
	JournalID string    `json:"journal_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// IdempotencyRecord caches the terminal response of a request-scoped operation
// under a caller-supplied key. Written once per (key, operation), read-only after.
type IdempotencyRecord struct {
	Key        string    `json:"key"`
	Operation  string    `json:"operation"`
	StatusCode int       `json:"status_code"`
	Response   []byte    `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
}

// InboxEvent is the durable record of an inbound asynchronous message, keyed by
// the external event id. Status advances received -> processed or received -> failed.
type InboxEvent struct {
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Inbox event statuses.
const (
	InboxStatusReceived  = "received"
	InboxStatusProcessed = "processed"
	InboxStatusFailed    = "failed"
)
