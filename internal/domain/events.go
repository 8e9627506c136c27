/**
 * @description
 * This file defines the asynchronous event payloads exchanged over the message
 * broker: the inbound ledger posting events consumed by this service and the
 * outbound notification events it publishes after sagas complete.
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

// Posting is one signed adjustment to an account's balance triple, originating
// from an externally confirmed ledger transaction. Deltas are minor units.
type Posting struct {
	AccountID      uuid.UUID `json:"account_id"`
	DeltaLedger    int64     `json:"delta_ledger"`
	DeltaAvailable int64     `json:"delta_available"`
	DeltaHold      int64     `json:"delta_hold"`
}

// LedgerPostedEvent is the at-least-once delivered message emitted by the
// external ledger after a journal is posted. EventID is the dedup key.
type LedgerPostedEvent struct {
	EventID  string    `json:"event_id"`
	Postings []Posting `json:"postings"`
}

// AccountOpenedEvent is published after the account-opening saga completes.
type AccountOpenedEvent struct {
	AccountID  uuid.UUID `json:"account_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Currency   string    `json:"currency"`
	JournalID  string    `json:"journal_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// RegistrationActivatedEvent is published after an activation reaches ACTIVATED.
type RegistrationActivatedEvent struct {
	RegistrationID   uuid.UUID `json:"registration_id"`
	CustomerID       string    `json:"customer_id"`
	PrimaryAccountID string    `json:"primary_account_id"`
	Timestamp        time.Time `json:"timestamp"`
}
