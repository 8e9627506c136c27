/**
 * @description
 * This file defines the registration intent model that backs customer onboarding.
 * A registration is a flat, state-tagged record: the activation saga advances its
 * state and fills the per-step output fields one at a time, persisting each field
 * the instant the corresponding external call succeeds so a crashed activation
 * resumes at the first incomplete step.
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

// Registration states.
const (
	RegistrationStarted      = "STARTED"
	RegistrationKYCConfirmed = "KYC_CONFIRMED"
	RegistrationActivating   = "ACTIVATING"
	RegistrationActivated    = "ACTIVATED"
	RegistrationRejected     = "REJECTED"
)

// RegistrationIntent is the persisted saga state for one onboarding attempt.
// CustomerID, PrimaryAccountID and BonusJournalID are nil until the matching
// activation sub-step has completed.
type RegistrationIntent struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone"`
	Channel          string     `json:"channel"`
	State            string     `json:"state"`
	ActivationRef    *string    `json:"activation_ref,omitempty"`
	CustomerID       *string    `json:"customer_id,omitempty"`
	PrimaryAccountID *string    `json:"primary_account_id,omitempty"`
	BonusJournalID   *string    `json:"bonus_journal_id,omitempty"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CustomerProfile carries the profile fields forwarded to the external
// customer-creation capability during activation.
type CustomerProfile struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	TaxID     string `json:"tax_id,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

// ActivatedAccount describes one account provisioned during activation.
type ActivatedAccount struct {
	AccountID   string `json:"account_id"`
	Currency    string `json:"currency"`
	ProductType string `json:"product_type"`
}

// ActivationResult is the terminal, cacheable result of a completed activation.
type ActivationResult struct {
	RegistrationID   uuid.UUID          `json:"registration_id"`
	State            string             `json:"state"`
	CustomerID       string             `json:"customer_id"`
	PrimaryAccountID string             `json:"primary_account_id"`
	ActivationRef    string             `json:"activation_ref"`
	Accounts         []ActivatedAccount `json:"accounts"`
	BonusJournalID   string             `json:"bonus_journal_id"`
	CorrelationID    string             `json:"correlation_id,omitempty"`
}
