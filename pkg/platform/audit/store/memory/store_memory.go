package memory

import (
	"context"
	"sync"

	audit "remit/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Seq = uint64(len(s.events)) + 1
	s.events = append(s.events, *event)
	return nil
}

// ListAfter returns up to limit events with Seq > after, oldest first.
func (s *InMemoryStore) ListAfter(_ context.Context, after uint64, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if after >= uint64(len(s.events)) {
		return []audit.Event{}, nil
	}
	rest := s.events[after:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]audit.Event{}, rest...), nil
}
