package idempotency

import (
	"context"
	"log/slog"
	"time"

	"remit/pkg/platform/circuit"
)

// FallbackStore serves from primary until it fails repeatedly, then switches
// to a local fallback. While open, reads still try primary so the breaker
// can close once it recovers. Entries written during an outage stay local.
type FallbackStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackStore(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Degraded reports whether requests are being served from the fallback.
func (s *FallbackStore) Degraded() bool {
	return s.breaker.IsOpen()
}

func (s *FallbackStore) Get(ctx context.Context, key string) (*Response, bool, error) {
	resp, ok, err := s.primary.Get(ctx, key)
	if err != nil {
		if s.failed(ctx, "get", err) {
			return s.fallback.Get(ctx, key)
		}
		return nil, false, err
	}
	if !s.succeeded(ctx) {
		return s.fallback.Get(ctx, key)
	}
	return resp, ok, nil
}

func (s *FallbackStore) Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	if s.breaker.IsOpen() {
		return s.fallback.Save(ctx, key, resp, ttl)
	}
	if err := s.primary.Save(ctx, key, resp, ttl); err != nil {
		if s.failed(ctx, "save", err) {
			return s.fallback.Save(ctx, key, resp, ttl)
		}
		return err
	}
	s.succeeded(ctx)
	return nil
}

func (s *FallbackStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.breaker.IsOpen() {
		return s.fallback.Lock(ctx, key, ttl)
	}
	ok, err := s.primary.Lock(ctx, key, ttl)
	if err != nil {
		if s.failed(ctx, "lock", err) {
			return s.fallback.Lock(ctx, key, ttl)
		}
		return false, err
	}
	s.succeeded(ctx)
	return ok, nil
}

// Unlock releases on both sides; a lock taken on either must not linger.
func (s *FallbackStore) Unlock(ctx context.Context, key string) error {
	_ = s.fallback.Unlock(ctx, key)
	if err := s.primary.Unlock(ctx, key); err != nil {
		s.failed(ctx, "unlock", err)
	}
	return nil
}

func (s *FallbackStore) failed(ctx context.Context, op string, err error) bool {
	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "idempotency store degraded, using local fallback",
			"breaker", s.breaker.Name(),
			"op", op,
			"error", err,
		)
	}
	return useFallback
}

func (s *FallbackStore) succeeded(ctx context.Context) bool {
	usePrimary, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "idempotency store recovered", "breaker", s.breaker.Name())
	}
	return usePrimary
}
