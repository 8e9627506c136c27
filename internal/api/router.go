/**
 * @description
 * This file sets up the HTTP router for the account-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for chi.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AccountRoutes creates and returns a new router for the account service.
func AccountRoutes(h *AccountHandlers, jwksURL, authAudience, authIssuer, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Server-to-server endpoints guarded by the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/accounts", h.CreateAccountHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL, authAudience, authIssuer))

		r.Post("/accounts/open", h.OpenAccountHandler)
		r.Get("/accounts/{accountID}", h.GetAccountHandler)
		r.Get("/accounts/{accountID}/balance", h.GetBalanceHandler)
		r.Post("/accounts/{accountID}/holds/reserve", h.ReserveHoldHandler)
		r.Post("/accounts/{accountID}/holds/release", h.ReleaseHoldHandler)

		r.Post("/registrations", h.StartRegistrationHandler)
		r.Get("/registrations/{registrationID}", h.GetRegistrationHandler)
		r.Post("/registrations/{registrationID}/kyc-confirm", h.ConfirmKYCHandler)
		r.Post("/registrations/{registrationID}/activate", h.ActivateHandler)
		r.Post("/registrations/{registrationID}/reject", h.RejectRegistrationHandler)
	})

	return r
}
