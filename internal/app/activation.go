/**
 * @description
 * This file implements the registration activation saga. Activation runs a
 * fixed sequence of external sub-steps (create customer, provision the primary
 * account, credit the welcome bonus) and persists each sub-step's output on
 * the registration record the moment it is confirmed. A crashed or retried
 * activation re-reads the record and resumes at the first sub-step whose
 * output is still missing; completed sub-steps are never re-executed because
 * their recorded outputs short-circuit them.
 *
 * All external calls reuse sub-keys derived from the registration's stable
 * activation reference, so even a re-executed call cannot duplicate its
 * effect upstream.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/customerclient, pkg/ledgerclient: External capability request types.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/veltabank/account-service/internal/domain"
	"github.com/veltabank/account-service/internal/store"
	"github.com/veltabank/account-service/pkg/customerclient"
	"github.com/veltabank/account-service/pkg/ledgerclient"
)

var (
	// ErrNotActivatable is returned when the registration is not in a state
	// from which activation may start or resume.
	ErrNotActivatable = errors.New("registration is not activatable")
)

// CustomerCreator is the external customer-creation capability. Creation is
// idempotent per key.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, idempotencyKey string, req customerclient.CreateCustomerRequest) (string, error)
}

// AccountCreator provisions the customer's primary account. Provisioning is
// idempotent per key: concurrent or re-entered invocations carrying the same
// key must converge on one account.
type AccountCreator interface {
	ProvisionAccount(ctx context.Context, idempotencyKey string, customerID uuid.UUID, productType, currency string) (uuid.UUID, error)
}

// ActivationService orchestrates registration onboarding.
type ActivationService struct {
	registrations store.RegistrationRepository
	customers     CustomerCreator
	accounts      AccountCreator
	ledger        LedgerCreditor
	publisher     EventPublisher

	bonusAmount int64
	productType string
	currency    string
}

// NewActivationService creates a new activation service instance.
func NewActivationService(
	registrations store.RegistrationRepository,
	customers CustomerCreator,
	accounts AccountCreator,
	ledger LedgerCreditor,
	publisher EventPublisher,
	bonusAmount int64,
	productType, currency string,
) *ActivationService {
	return &ActivationService{
		registrations: registrations,
		customers:     customers,
		accounts:      accounts,
		ledger:        ledger,
		publisher:     publisher,
		bonusAmount:   bonusAmount,
		productType:   productType,
		currency:      currency,
	}
}

// StartRegistrationCommand is the input to StartRegistration.
type StartRegistrationCommand struct {
	Email   string
	Phone   string
	Channel string
}

// StartRegistration creates a registration intent in the STARTED state.
func (s *ActivationService) StartRegistration(ctx context.Context, cmd StartRegistrationCommand) (*domain.RegistrationIntent, error) {
	if cmd.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	intent := &domain.RegistrationIntent{
		ID:      uuid.New(),
		Email:   cmd.Email,
		Phone:   cmd.Phone,
		Channel: cmd.Channel,
		State:   domain.RegistrationStarted,
	}
	if err := s.registrations.CreateRegistration(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	return intent, nil
}

// ConfirmKYC transitions a STARTED registration to KYC_CONFIRMED. Confirming
// an already confirmed registration is a no-op.
func (s *ActivationService) ConfirmKYC(ctx context.Context, registrationID uuid.UUID) (*domain.RegistrationIntent, error) {
	intent, err := s.registrations.FindRegistrationByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	switch intent.State {
	case domain.RegistrationStarted:
		if err := s.registrations.UpdateRegistrationState(ctx, registrationID, domain.RegistrationKYCConfirmed); err != nil {
			return nil, err
		}
		intent.State = domain.RegistrationKYCConfirmed
		return intent, nil
	case domain.RegistrationKYCConfirmed, domain.RegistrationActivating, domain.RegistrationActivated:
		return intent, nil
	default:
		return nil, fmt.Errorf("%w: registration is %s", ErrNotActivatable, intent.State)
	}
}

// Reject moves a non-terminal registration to REJECTED.
func (s *ActivationService) Reject(ctx context.Context, registrationID uuid.UUID) error {
	intent, err := s.registrations.FindRegistrationByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if intent.State == domain.RegistrationActivated {
		return fmt.Errorf("%w: registration is already %s", ErrNotActivatable, intent.State)
	}
	return s.registrations.UpdateRegistrationState(ctx, registrationID, domain.RegistrationRejected)
}

// ActivateCommand is the input to Activate.
type ActivateCommand struct {
	RegistrationID uuid.UUID
	Profile        domain.CustomerProfile
	CorrelationID  string
}

// Activate drives the registration through customer creation, account
// provisioning and the welcome bonus credit. It is safe to call repeatedly:
// an ACTIVATED registration returns its recorded result, an ACTIVATING one
// resumes at the first incomplete sub-step, and each completed sub-step's
// output is reused rather than re-executed.
func (s *ActivationService) Activate(ctx context.Context, cmd ActivateCommand) (*domain.ActivationResult, error) {
	intent, err := s.registrations.FindRegistrationByID(ctx, cmd.RegistrationID)
	if err != nil {
		return nil, err
	}

	switch intent.State {
	case domain.RegistrationActivated:
		return s.resultFromIntent(intent, cmd.CorrelationID), nil
	case domain.RegistrationKYCConfirmed:
		ref := activationRef(intent.ID)
		if err := s.registrations.BeginActivation(ctx, intent.ID, ref); err != nil {
			return nil, err
		}
		intent.State = domain.RegistrationActivating
		intent.ActivationRef = &ref
	case domain.RegistrationActivating:
		// Resuming a previously interrupted activation.
	default:
		return nil, fmt.Errorf("%w: registration is %s", ErrNotActivatable, intent.State)
	}

	if intent.ActivationRef == nil {
		return nil, fmt.Errorf("registration %s is %s without an activation ref", intent.ID, intent.State)
	}
	ref := *intent.ActivationRef

	// 1. Create the customer. The recorded customer id short-circuits this
	// step on resume; otherwise the sub-key dedupes the external call.
	customerID := ""
	if intent.CustomerID != nil {
		customerID = *intent.CustomerID
	} else {
		customerID, err = s.customers.CreateCustomer(ctx, ref, customerclient.CreateCustomerRequest{
			ExternalRef: ref,
			FullName:    cmd.Profile.FullName,
			Email:       firstNonEmpty(cmd.Profile.Email, intent.Email),
			Phone:       firstNonEmpty(cmd.Profile.Phone, intent.Phone),
			Country:     cmd.Profile.Country,
			TaxID:       cmd.Profile.TaxID,
			BirthDate:   cmd.Profile.BirthDate,
		})
		if err != nil {
			return nil, &ExternalError{Op: "customer creation", Err: err}
		}
		if err := s.registrations.SetCustomerID(ctx, intent.ID, customerID); err != nil {
			return nil, err
		}
		intent.CustomerID = &customerID
	}

	// 2. Provision the primary account under the activation's account
	// sub-key. Concurrent activations of one registration carry the same
	// key and land on the same account row.
	accountID := ""
	if intent.PrimaryAccountID != nil {
		accountID = *intent.PrimaryAccountID
	} else {
		customerUUID, err := uuid.Parse(customerID)
		if err != nil {
			return nil, fmt.Errorf("invalid customer id %q: %w", customerID, err)
		}
		id, err := s.accounts.ProvisionAccount(ctx, ref+":acct", customerUUID, s.productType, s.currency)
		if err != nil {
			return nil, err
		}
		accountID = id.String()
		if err := s.registrations.SetPrimaryAccountID(ctx, intent.ID, accountID); err != nil {
			return nil, err
		}
		intent.PrimaryAccountID = &accountID
	}

	// 3. Credit the welcome bonus on the external ledger. The local balance
	// is not touched here: the credit lands through the posting events the
	// ledger emits, so this step only needs the journal id.
	journalID := ""
	if intent.BonusJournalID != nil {
		journalID = *intent.BonusJournalID
	} else {
		journalID, err = s.ledger.CreditAccount(ctx, ref+":bonus", ledgerclient.CreditRequest{
			AccountID:   accountID,
			Currency:    s.currency,
			Amount:      s.bonusAmount,
			InitiatedBy: "system",
			ExternalRef: bonusExternalRef,
			Reason:      bonusReason,
			CustomerID:  customerID,
		})
		if err != nil {
			return nil, &ExternalError{Op: "bonus credit", Err: err}
		}
		if err := s.registrations.SetBonusJournalID(ctx, intent.ID, journalID); err != nil {
			return nil, err
		}
		intent.BonusJournalID = &journalID
	}

	// 4. Terminal transition.
	now := time.Now().UTC()
	if err := s.registrations.MarkActivated(ctx, intent.ID, now); err != nil {
		return nil, err
	}
	intent.State = domain.RegistrationActivated
	intent.ActivatedAt = &now

	s.publishActivated(ctx, intent)

	return s.resultFromIntent(intent, cmd.CorrelationID), nil
}

// GetRegistration retrieves a registration intent by id.
func (s *ActivationService) GetRegistration(ctx context.Context, id uuid.UUID) (*domain.RegistrationIntent, error) {
	return s.registrations.FindRegistrationByID(ctx, id)
}

func (s *ActivationService) resultFromIntent(intent *domain.RegistrationIntent, correlationID string) *domain.ActivationResult {
	result := &domain.ActivationResult{
		RegistrationID: intent.ID,
		State:          intent.State,
		CorrelationID:  correlationID,
	}
	if intent.CustomerID != nil {
		result.CustomerID = *intent.CustomerID
	}
	if intent.ActivationRef != nil {
		result.ActivationRef = *intent.ActivationRef
	}
	if intent.BonusJournalID != nil {
		result.BonusJournalID = *intent.BonusJournalID
	}
	if intent.PrimaryAccountID != nil {
		result.PrimaryAccountID = *intent.PrimaryAccountID
		result.Accounts = []domain.ActivatedAccount{{
			AccountID:   *intent.PrimaryAccountID,
			Currency:    s.currency,
			ProductType: s.productType,
		}}
	}
	return result
}

func (s *ActivationService) publishActivated(ctx context.Context, intent *domain.RegistrationIntent) {
	if s.publisher == nil {
		return
	}
	event := domain.RegistrationActivatedEvent{
		RegistrationID: intent.ID,
		Timestamp:      time.Now().UTC(),
	}
	if intent.CustomerID != nil {
		event.CustomerID = *intent.CustomerID
	}
	if intent.PrimaryAccountID != nil {
		event.PrimaryAccountID = *intent.PrimaryAccountID
	}
	if err := s.publisher.Publish(ctx, eventsExchange, "registration.activated", event); err != nil {
		log.Printf("level=warn component=activation_service msg=\"failed to publish registration.activated\" registration_id=%s err=%v", intent.ID, err)
	}
}

// activationRef is the stable per-registration key that scopes every external
// sub-step of one activation.
func activationRef(registrationID uuid.UUID) string {
	return "act-" + registrationID.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
