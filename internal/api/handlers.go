/**
 * @description
 * This file contains the HTTP handlers for the account-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application services, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * The account-opening and activation endpoints run behind the idempotency guard:
 * a repeated call with a known Idempotency-Key replays the recorded response
 * verbatim instead of re-entering the saga.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - github.com/google/uuid: For UUID parsing.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/veltabank/account-service/internal/app"
	"github.com/veltabank/account-service/internal/domain"
	"github.com/veltabank/account-service/internal/store"
)

const (
	opOpenAccount = "accounts.open"
	opActivate    = "registrations.activate"
)

// AccountHandlers holds the application services that handlers will use.
type AccountHandlers struct {
	service    *app.Service
	activation *app.ActivationService
	guard      *app.IdempotencyGuard
}

// NewAccountHandlers creates a new instance of AccountHandlers.
func NewAccountHandlers(service *app.Service, activation *app.ActivationService, guard *app.IdempotencyGuard) *AccountHandlers {
	return &AccountHandlers{service: service, activation: activation, guard: guard}
}

type openAccountRequest struct {
	CustomerID  string `json:"customer_id"`
	ProductType string `json:"product_type"`
	Currency    string `json:"currency"`
}

// OpenAccountHandler handles requests to open an account with the opening bonus.
func (h *AccountHandlers) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := GetAuthSubject(r.Context())

	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=open_account outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid customer_id format")
		return
	}
	if req.ProductType == "" || req.Currency == "" {
		h.writeError(w, http.StatusBadRequest, "product_type and currency are required")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	// Replay a previously recorded response for this key, if any.
	var cached app.OpenAccountResult
	if hit, err := h.guard.TryGet(r.Context(), idempotencyKey, opOpenAccount, &cached); err != nil {
		log.Printf("level=error component=api endpoint=open_account msg=\"idempotency lookup failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process request")
		return
	} else if hit {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	result, err := h.service.OpenAccount(r.Context(), app.OpenAccountCommand{
		CustomerID:     customerID,
		ProductType:    req.ProductType,
		Currency:       req.Currency,
		IdempotencyKey: idempotencyKey,
		InitiatedBy:    subject,
	})
	if err != nil {
		h.writeDomainError(w, "open_account", err)
		return
	}

	if err := h.guard.Save(r.Context(), idempotencyKey, opOpenAccount, http.StatusCreated, result); err != nil {
		log.Printf("level=warn component=api endpoint=open_account msg=\"failed to record idempotent response\" err=%v", err)
	}

	log.Printf("level=info component=api endpoint=open_account outcome=accepted account_id=%s customer_id=%s", result.AccountID, customerID)
	h.writeJSON(w, http.StatusCreated, result)
}

type createAccountRequest struct {
	CustomerID  string `json:"customer_id"`
	ProductType string `json:"product_type"`
	Currency    string `json:"currency"`
}

// CreateAccountHandler handles server-to-server account creation without the
// opening bonus.
func (h *AccountHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid customer_id format")
		return
	}
	if req.ProductType == "" || req.Currency == "" {
		h.writeError(w, http.StatusBadRequest, "product_type and currency are required")
		return
	}

	account, err := h.service.CreateAccount(r.Context(), customerID, req.ProductType, req.Currency)
	if err != nil {
		h.writeDomainError(w, "create_account", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// GetAccountHandler returns a single account by id.
func (h *AccountHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeDomainError(w, "get_account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalanceHandler returns the balance triple for an account.
func (h *AccountHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeDomainError(w, "get_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

type holdRequest struct {
	Amount int64 `json:"amount"`
}

type holdResponse struct {
	AccountID string `json:"account_id"`
	Hold      int64  `json:"hold"`
}

// ReserveHoldHandler reserves an amount against the account's available balance.
func (h *AccountHandlers) ReserveHoldHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be a positive integer of minor units")
		return
	}

	hold, err := h.service.ReserveHold(r.Context(), accountID, req.Amount)
	if err != nil {
		h.writeDomainError(w, "reserve_hold", err)
		return
	}
	h.writeJSON(w, http.StatusOK, holdResponse{AccountID: accountID.String(), Hold: hold})
}

// ReleaseHoldHandler releases an amount from the account's outstanding hold.
func (h *AccountHandlers) ReleaseHoldHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be a positive integer of minor units")
		return
	}

	hold, err := h.service.ReleaseHold(r.Context(), accountID, req.Amount)
	if err != nil {
		h.writeDomainError(w, "release_hold", err)
		return
	}
	h.writeJSON(w, http.StatusOK, holdResponse{AccountID: accountID.String(), Hold: hold})
}

type startRegistrationRequest struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Channel string `json:"channel"`
}

// StartRegistrationHandler creates a new registration intent.
func (h *AccountHandlers) StartRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req startRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	intent, err := h.activation.StartRegistration(r.Context(), app.StartRegistrationCommand{
		Email:   req.Email,
		Phone:   req.Phone,
		Channel: req.Channel,
	})
	if err != nil {
		h.writeDomainError(w, "start_registration", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, intent)
}

// GetRegistrationHandler returns a registration intent by id.
func (h *AccountHandlers) GetRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	registrationID, ok := h.parseUUIDParam(w, r, "registrationID")
	if !ok {
		return
	}
	intent, err := h.activation.GetRegistration(r.Context(), registrationID)
	if err != nil {
		h.writeDomainError(w, "get_registration", err)
		return
	}
	h.writeJSON(w, http.StatusOK, intent)
}

// ConfirmKYCHandler transitions a registration to KYC_CONFIRMED.
func (h *AccountHandlers) ConfirmKYCHandler(w http.ResponseWriter, r *http.Request) {
	registrationID, ok := h.parseUUIDParam(w, r, "registrationID")
	if !ok {
		return
	}
	intent, err := h.activation.ConfirmKYC(r.Context(), registrationID)
	if err != nil {
		h.writeDomainError(w, "confirm_kyc", err)
		return
	}
	h.writeJSON(w, http.StatusOK, intent)
}

// RejectRegistrationHandler moves a registration to REJECTED.
func (h *AccountHandlers) RejectRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	registrationID, ok := h.parseUUIDParam(w, r, "registrationID")
	if !ok {
		return
	}
	if err := h.activation.Reject(r.Context(), registrationID); err != nil {
		h.writeDomainError(w, "reject_registration", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"state": domain.RegistrationRejected})
}

type activateRequest struct {
	Profile       domain.CustomerProfile `json:"profile"`
	CorrelationID string                 `json:"correlation_id"`
}

// ActivateHandler drives a registration through activation. Repeated calls
// with the same Idempotency-Key replay the recorded response; calls without a
// key are still safe because the saga resumes from its persisted outputs.
func (h *AccountHandlers) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	registrationID, ok := h.parseUUIDParam(w, r, "registrationID")
	if !ok {
		return
	}
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	var cached domain.ActivationResult
	if hit, err := h.guard.TryGet(r.Context(), idempotencyKey, opActivate, &cached); err != nil {
		log.Printf("level=error component=api endpoint=activate msg=\"idempotency lookup failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process request")
		return
	} else if hit {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	result, err := h.activation.Activate(r.Context(), app.ActivateCommand{
		RegistrationID: registrationID,
		Profile:        req.Profile,
		CorrelationID:  req.CorrelationID,
	})
	if err != nil {
		h.writeDomainError(w, "activate", err)
		return
	}

	if err := h.guard.Save(r.Context(), idempotencyKey, opActivate, http.StatusOK, result); err != nil {
		log.Printf("level=warn component=api endpoint=activate msg=\"failed to record idempotent response\" err=%v", err)
	}

	log.Printf("level=info component=api endpoint=activate outcome=accepted registration_id=%s state=%s", registrationID, result.State)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *AccountHandlers) parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", name))
		return uuid.Nil, false
	}
	return id, true
}

// writeDomainError maps service errors onto HTTP statuses.
func (h *AccountHandlers) writeDomainError(w http.ResponseWriter, endpoint string, err error) {
	var extErr *app.ExternalError

	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrBalanceNotFound),
		errors.Is(err, store.ErrRegistrationNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient available balance")
	case errors.Is(err, store.ErrInvalidHoldState):
		h.writeError(w, http.StatusConflict, "Release exceeds current hold")
	case errors.Is(err, app.ErrNotActivatable):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many requests; try again later")
	case errors.As(err, &extErr):
		log.Printf("level=error component=api endpoint=%s msg=\"upstream call failed\" op=%q err=%v", endpoint, extErr.Op, extErr.Err)
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("Upstream %s failed", extErr.Op))
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"request failed\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process request")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *AccountHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *AccountHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
