package idempotency

import (
	"context"
	"sync"
	"time"
)

// Response is a cached handler result.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Store caches responses by key and serializes concurrent requests that
// share one.
type Store interface {
	Get(ctx context.Context, key string) (*Response, bool, error)
	Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type entry struct {
	resp    *Response
	expires time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu        sync.Mutex
	responses map[string]entry
	locks     map[string]time.Time
	clock     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: make(map[string]entry),
		locks:     make(map[string]time.Time),
		clock:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Response, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.responses[key]
	if !ok {
		return nil, false, nil
	}
	if !s.clock().Before(e.expires) {
		delete(s.responses, key)
		return nil, false, nil
	}
	cp := *e.resp
	cp.Body = append([]byte(nil), e.resp.Body...)
	return &cp, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, resp *Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *resp
	cp.Body = append([]byte(nil), resp.Body...)
	s.responses[key] = entry{resp: &cp, expires: s.clock().Add(ttl)}
	return nil
}

func (s *MemoryStore) Lock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if until, held := s.locks[key]; held && now.Before(until) {
		return false, nil
	}
	s.locks[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}
