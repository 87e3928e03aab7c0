// Package ratelimit throttles ledger API callers with a per-key sliding
// window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result describes the outcome of a single check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// WindowStore is an in-process sliding window limiter. Counts are not
// shared between replicas.
type WindowStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	clock   func() time.Time
}

func NewWindowStore() *WindowStore {
	return &WindowStore{
		windows: make(map[string][]time.Time),
		clock:   time.Now,
	}
}

// Allow records one request for key if fewer than limit were seen in the
// trailing window.
func (s *WindowStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	stamps := trim(s.windows[key], now.Add(-window))
	if len(stamps) >= limit {
		s.windows[key] = stamps
		reset := stamps[0].Add(window)
		return Result{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    reset,
			RetryAfter: reset.Sub(now),
		}, nil
	}
	stamps = append(stamps, now)
	s.windows[key] = stamps
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(stamps),
		ResetAt:   stamps[0].Add(window),
	}, nil
}

// Sweep drops keys with no requests in the trailing window.
func (s *WindowStore) Sweep(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock().Add(-window)
	removed := 0
	for key, stamps := range s.windows {
		if len(trim(stamps, cutoff)) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// trim drops timestamps at or before cutoff; stamps are in arrival order.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
