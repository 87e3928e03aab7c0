package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remit/pkg/domain"
	"remit/pkg/requestcontext"
)

func newTestStore(now *time.Time) *WindowStore {
	s := NewWindowStore()
	s.clock = func() time.Time { return *now }
	return s
}

func TestWindowStoreSlides(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestStore(&now)

	for i := range 3 {
		res, err := s.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}
	res, _ := s.Allow(ctx, "k", 3, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	res, _ = s.Allow(ctx, "other", 3, time.Minute)
	assert.True(t, res.Allowed, "keys are independent")

	now = now.Add(time.Minute)
	res, _ = s.Allow(ctx, "k", 3, time.Minute)
	assert.True(t, res.Allowed, "window has passed")
}

func TestWindowStoreSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(&now)
	_, _ = s.Allow(context.Background(), "a", 1, time.Second)
	now = now.Add(2 * time.Second)
	_, _ = s.Allow(context.Background(), "b", 1, time.Second)

	assert.Equal(t, 1, s.Sweep(time.Second))
	assert.Len(t, s.windows, 1)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("boom")
}

func TestPerCaller(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	alice := domain.AccountID{19: 1}
	bob := domain.AccountID{19: 2}

	request := func(caller domain.AccountID) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/transactions/count", nil)
		ctx := requestcontext.WithClientMetadata(req.Context(), "10.0.0.1", "", "")
		if !caller.IsZero() {
			ctx = requestcontext.WithCaller(ctx, caller)
		}
		return req.WithContext(ctx)
	}

	t.Run("throttles each caller separately", func(t *testing.T) {
		h := New(NewWindowStore(), 2, time.Minute, logger).PerCaller(ok)
		for range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(alice))
			require.Equal(t, http.StatusNoContent, rec.Code)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request(alice))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, request(bob))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("anonymous requests key on client ip", func(t *testing.T) {
		h := New(NewWindowStore(), 1, time.Minute, logger).PerCaller(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request(domain.AccountID{}))
		require.Equal(t, http.StatusNoContent, rec.Code)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, request(domain.AccountID{}))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("limiter errors fail open", func(t *testing.T) {
		h := New(failingLimiter{}, 1, time.Minute, logger).PerCaller(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request(alice))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("non-positive limit disables throttling", func(t *testing.T) {
		h := New(NewWindowStore(), 0, time.Minute, logger).PerCaller(ok)
		for range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(alice))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
	})
}
