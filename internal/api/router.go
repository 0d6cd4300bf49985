/**
 * @description
 * This file sets up the HTTP router for the wallet ledger service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for identity extraction, internal auth, and rate
 * limiting.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/centipay/wallet-service/internal/app"
)

// WalletRoutes creates and returns a new router for the wallet ledger service.
func WalletRoutes(h *WalletHandlers, internalAPIKey string, limiter *app.RedisRateLimiter, operationLimitPerMin int) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Group routes that require a gateway-resolved identity.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))
		r.Use(IdentityMiddleware)

		r.Get("/wallet/fees/quote", h.QuoteFeeHandler)
		r.Get("/wallet/accounts/{accountID}/snapshot", h.AccountSnapshotHandler)
		r.Get("/wallet/accounts/{accountID}/transactions", h.ListTransactionsHandler)

		// Mutating calls additionally pass the per-account rate gate.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(limiter, operationLimitPerMin))
			r.Post("/wallet/accounts/{accountID}/operations", h.ApplyOperationHandler)
		})
	})

	return r
}
