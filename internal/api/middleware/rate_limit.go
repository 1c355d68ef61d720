package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/economy-ledger/internal/api/problem"
	"github.com/ayo6706/economy-ledger/internal/observability"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits unauthenticated routes per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return limiter(rps, "ip", httprate.KeyByIP)
}

// AuthRateLimiter limits authenticated routes per account, so many users
// behind one NAT do not share a bucket. Must run after AuthMiddleware.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return limiter(rps, "account", func(r *http.Request) (string, error) {
		if accountID := UserIDFromContext(r.Context()); accountID != "" {
			return accountID, nil
		}
		return httprate.KeyByIP(r)
	})
}

func limiter(rps int, scope string, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			observability.IncrementRateLimited(scope)
			w.Header().Set("Retry-After", "1")
			problem.WriteCode(w, r, http.StatusTooManyRequests, problem.Type("rate-limit-exceeded"), "RATE_LIMITED",
				fmt.Sprintf("rate limit of %d req/s exceeded for this %s", rps, scope))
		}),
	)
}
