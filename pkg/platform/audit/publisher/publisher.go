package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "remit/pkg/platform/audit"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

// Publisher stamps events and appends them to the log. In sync mode Emit
// returns once the event is stored; with WithAsyncBuffer a single goroutine
// drains a bounded queue in FIFO order.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	clock  func() time.Time

	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	done   chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous persistence with a queue of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit stamps id, timestamp and category, then persists or enqueues the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if event.Category == "" {
		event.Category = event.Kind.Category()
	}
	if event.ID == "" {
		id, err := audit.NewEventID()
		if err != nil {
			return err
		}
		event.ID = id
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.buffer == nil {
		return p.store.Append(ctx, &event)
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns stored events with Seq > after.
func (p *Publisher) List(ctx context.Context, after uint64, limit int) ([]audit.Event, error) {
	return p.store.ListAfter(ctx, after, limit)
}

// Close stops accepting events and waits for the queue to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), &event); err != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"event_id", event.ID,
				"kind", event.Kind,
			)
		}
	}
}
