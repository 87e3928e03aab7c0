package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "remit/pkg/platform/audit"
)

const (
	defaultBatchSize    = 256
	defaultPollInterval = time.Second
)

// Relay forwards events from the log to a sink in Seq order. The cursor only
// advances after a batch is delivered, so a failed delivery is retried on the
// next poll and the sink sees each event at least once.
type Relay struct {
	store    audit.Store
	sink     audit.Sink
	logger   *slog.Logger
	batch    int
	interval time.Duration

	mu     sync.Mutex
	cursor uint64
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithCursor starts the relay after the given sequence number.
func WithCursor(seq uint64) Option {
	return func(r *Relay) {
		r.cursor = seq
	}
}

func NewRelay(store audit.Store, sink audit.Sink, opts ...Option) *Relay {
	r := &Relay{
		store:    store,
		sink:     sink,
		logger:   slog.Default(),
		batch:    defaultBatchSize,
		interval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Delivery errors are logged and retried.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "event relay flush failed",
				"error", err,
				"cursor", r.Cursor(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush delivers every event after the cursor and returns how many were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for {
		events, err := r.store.ListAfter(ctx, r.cursor, r.batch)
		if err != nil {
			return sent, fmt.Errorf("list events after %d: %w", r.cursor, err)
		}
		if len(events) == 0 {
			return sent, nil
		}
		if err := r.sink.Deliver(ctx, events); err != nil {
			return sent, fmt.Errorf("deliver events %d..%d: %w", events[0].Seq, events[len(events)-1].Seq, err)
		}
		r.cursor = events[len(events)-1].Seq
		sent += len(events)
		if len(events) < r.batch {
			return sent, nil
		}
	}
}

// Cursor returns the Seq of the last delivered event.
func (r *Relay) Cursor() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}
