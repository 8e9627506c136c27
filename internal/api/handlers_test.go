package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veltabank/account-service/internal/app"
	"github.com/veltabank/account-service/internal/store"
)

func TestWriteDomainError_StatusMapping(t *testing.T) {
	h := &AccountHandlers{}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "account not found", err: store.ErrAccountNotFound, want: http.StatusNotFound},
		{name: "balance not found", err: store.ErrBalanceNotFound, want: http.StatusNotFound},
		{name: "registration not found", err: store.ErrRegistrationNotFound, want: http.StatusNotFound},
		{name: "insufficient funds", err: store.ErrInsufficientFunds, want: http.StatusUnprocessableEntity},
		{name: "invalid hold state", err: store.ErrInvalidHoldState, want: http.StatusConflict},
		{name: "not activatable", err: app.ErrNotActivatable, want: http.StatusConflict},
		{name: "rate limited", err: app.ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "upstream failure", err: &app.ExternalError{Op: "ledger credit", Err: errors.New("timeout")}, want: http.StatusBadGateway},
		{name: "wrapped sentinel", err: errors.Join(errors.New("context"), store.ErrInsufficientFunds), want: http.StatusUnprocessableEntity},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeDomainError(rec, "test", tt.err)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected JSON error body, got content type %q", ct)
			}
		})
	}
}

func TestInternalAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("empty required key passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		InternalAuthMiddleware("")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/accounts", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected passthrough, got %d", rec.Code)
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		InternalAuthMiddleware("secret")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/accounts", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("matching header accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/accounts", nil)
		req.Header.Set("X-Internal-API-Key", "secret")
		rec := httptest.NewRecorder()
		InternalAuthMiddleware("secret")(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	})
}
