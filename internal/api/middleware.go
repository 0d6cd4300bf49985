/**
 * @description
 * This file contains custom middleware for the HTTP router. The ledger engine
 * sits behind the platform gateway, which authenticates the caller and
 * forwards the resolved account identity as headers; middleware here turns
 * those headers into a typed identity on the request context and enforces the
 * internal service key and the per-account operation rate limit.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 */

package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/app"
	"github.com/centipay/wallet-service/internal/domain"
)

// identityContextKey is a custom type for the context key to avoid collisions.
type identityContextKey string

const accountIdentityKey identityContextKey = "accountIdentity"

// Headers set by the platform gateway after authenticating the caller.
const (
	HeaderAccountID   = "X-Account-Id"
	HeaderPremiumTier = "X-Premium-Tier"
	HeaderInternalKey = "X-Internal-Api-Key"
)

// IdentityMiddleware extracts the gateway-resolved account identity from the
// request headers. Requests without a valid identity are rejected before any
// handler runs.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(HeaderAccountID)))
		if err != nil {
			http.Error(w, "Account identity header required", http.StatusUnauthorized)
			return
		}

		tier := domain.PremiumTier(strings.TrimSpace(strings.ToLower(r.Header.Get(HeaderPremiumTier))))
		if tier == "" {
			tier = domain.TierBasic
		}
		if !domain.ValidTier(tier) {
			http.Error(w, "Invalid premium tier header", http.StatusUnauthorized)
			return
		}

		identity := domain.AccountIdentity{ID: accountID, PremiumTier: tier}
		ctx := context.WithValue(r.Context(), accountIdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// InternalAuthMiddleware enforces the shared service key for service-to-service
// calls. An empty configured key disables the check (local development).
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				provided := r.Header.Get(HeaderInternalKey)
				if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
					http.Error(w, "Invalid internal API key", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware gates mutating calls per account through the Redis
// limiter. A nil limiter or non-positive limit disables the gate.
func RateLimitMiddleware(limiter *app.RedisRateLimiter, limitPerMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limitPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			identity, ok := GetAccountIdentity(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "operations", identity.ID.String(), limitPerMinute, time.Minute)
			if err != nil {
				// Redis being down must not take the ledger down with it.
				next.ServeHTTP(w, r)
				return
			}
			if count > limitPerMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, domain.ErrRateLimited.Error(), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAccountIdentity retrieves the gateway-resolved identity from the request
// context. Handlers should use this function to get the calling account.
func GetAccountIdentity(ctx context.Context) (domain.AccountIdentity, bool) {
	identity, ok := ctx.Value(accountIdentityKey).(domain.AccountIdentity)
	return identity, ok
}
