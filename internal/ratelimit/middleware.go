package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"remit/pkg/platform/httputil"
	"remit/pkg/requestcontext"
)

// Limiter is the check the middleware depends on.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

type Middleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// New returns a limiter allowing limit requests per window for each caller.
// A non-positive limit disables throttling.
func New(limiter Limiter, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, limit: limit, window: window, logger: logger}
}

// PerCaller keys on the authenticated account, falling back to the client IP
// for requests that carry none.
func (m *Middleware) PerCaller(next http.Handler) http.Handler {
	if m.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "ip:" + requestcontext.ClientIP(ctx)
		if caller := requestcontext.Caller(ctx); !caller.IsZero() {
			key = "caller:" + caller.Hex()
		}

		result, err := m.limiter.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed", "error", err, "key", key)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "too many requests, try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
