package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"remit/internal/ledger/metrics"
	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
	"remit/pkg/platform/audit"
	"remit/pkg/platform/sentinel"
	"remit/pkg/requestcontext"
)

// DefaultMaxBatch bounds BatchVerifyUsers.
const DefaultMaxBatch = 10000

// Rail moves value across the ledger boundary in two phases. Reserve checks
// and holds every leg of a settlement or none of them. Capture makes a live
// hold final and must not fail for lack of funds. Release returns held value.
type Rail interface {
	Reserve(ctx context.Context, s models.Settlement) (models.HoldID, error)
	Capture(ctx context.Context, id models.HoldID) error
	Release(ctx context.Context, id models.HoldID) error
}

// EventPublisher receives events after their mutation has committed.
type EventPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Ledger is the remittance engine. All mutations are serialized by one lock
// and run inside one store transaction. Funds are reserved before commit, so a
// failed reservation rolls the transaction back, and move only after commit.
type Ledger struct {
	mu sync.RWMutex

	backend  store.Backend
	rail     Rail
	events   EventPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    func() time.Time
	maxBatch int
	feeRate  uint16
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(l *Ledger) {
		l.events = p
	}
}

// WithFeeRate sets the rate used when a new ledger is initialized. A resumed
// ledger keeps its persisted rate.
func WithFeeRate(bps uint16) Option {
	return func(l *Ledger) {
		l.feeRate = bps
	}
}

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func WithMaxBatch(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxBatch = n
		}
	}
}

// New opens the ledger held by backend, initializing it with owner and
// feeCollector if the backend is empty.
func New(ctx context.Context, backend store.Backend, rail Rail, owner, feeCollector domain.AccountID, opts ...Option) (*Ledger, error) {
	if backend == nil {
		return nil, fmt.Errorf("ledger backend is required")
	}
	if rail == nil {
		return nil, fmt.Errorf("settlement rail is required")
	}

	l := &Ledger{
		backend:  backend,
		rail:     rail,
		logger:   slog.Default(),
		tracer:   otel.Tracer("remit/ledger"),
		clock:    time.Now,
		maxBatch: DefaultMaxBatch,
		feeRate:  models.DefaultFeeRateBps,
	}
	for _, opt := range opts {
		opt(l)
	}

	if owner.IsZero() {
		return nil, models.ErrOwnableInvalidOwner
	}
	if feeCollector.IsZero() {
		return nil, models.ErrInvalidFeeCollector
	}
	if err := models.ValidateFeeRate(uint64(l.feeRate)); err != nil {
		return nil, err
	}

	var cfg *models.Config
	err := backend.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		existing, err := st.LoadConfig(ctx)
		if err == nil {
			cfg = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		cfg = &models.Config{
			Owner:        owner,
			FeeCollector: feeCollector,
			FeeRateBps:   l.feeRate,
			Operators:    make(map[domain.AccountID]struct{}),
		}
		if _, err := rand.Read(cfg.LedgerID[:]); err != nil {
			return fmt.Errorf("generate ledger id: %w", err)
		}
		return st.SaveConfig(ctx, cfg)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open ledger")
	}

	if l.metrics != nil {
		l.metrics.SetPaused(cfg.Paused)
	}
	l.logger.InfoContext(ctx, "ledger_opened",
		"owner", cfg.Owner.String(),
		"fee_collector", cfg.FeeCollector.String(),
		"fee_rate_bps", cfg.FeeRateBps,
		"paused", cfg.Paused,
	)
	return l, nil
}

// guardKey marks a context handed to the rail by this ledger instance.
type guardKey struct{ l *Ledger }

func (l *Ledger) enter(ctx context.Context) error {
	if ctx.Value(guardKey{l}) != nil {
		return models.ErrReentrantCall
	}
	return nil
}

// effects collects what a mutation does outside the store. The settlement is
// reserved inside the transaction and captured after commit; events and hooks
// run after commit.
type effects struct {
	settlement models.Settlement
	events     []audit.Event
	committed  []func()
}

func (fx *effects) emit(e audit.Event) {
	fx.events = append(fx.events, e)
}

func (fx *effects) afterCommit(f func()) {
	fx.committed = append(fx.committed, f)
}

type mutation func(ctx context.Context, st store.Store, fx *effects) error

func (l *Ledger) mutate(ctx context.Context, op string, caller domain.AccountID, fn mutation) (err error) {
	if err := l.enter(ctx); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("ledger.operation", op),
		attribute.String("ledger.caller", caller.Hex()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, resultLabel(err))
		}
		span.End()
		if l.metrics != nil {
			l.metrics.ObserveOperation(op, start, resultLabel(err))
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		fx   effects
		hold models.HoldID
	)
	err = l.backend.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := fn(ctx, st, &fx); err != nil {
			return err
		}
		if fx.settlement.IsEmpty() {
			return nil
		}
		id, err := l.rail.Reserve(context.WithValue(ctx, guardKey{l}, struct{}{}), fx.settlement)
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrTransferFailed, err)
		}
		hold = id
		return nil
	})
	if err != nil {
		if hold != "" {
			l.release(ctx, op, hold)
		}
		l.logger.WarnContext(ctx, "ledger_operation_failed",
			"operation", op,
			"caller", caller.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return err
	}

	if hold != "" {
		l.capture(ctx, op, hold)
	}
	for _, f := range fx.committed {
		f()
	}
	l.publish(ctx, caller, fx.events)
	return nil
}

// capture runs after commit. The state change stands either way; a failed
// capture leaves the hold open for reconciliation.
func (l *Ledger) capture(ctx context.Context, op string, id models.HoldID) {
	railCtx := context.WithValue(ctx, guardKey{l}, struct{}{})
	if err := l.rail.Capture(railCtx, id); err != nil {
		l.logger.ErrorContext(ctx, "ledger_settlement_capture_failed",
			"operation", op,
			"hold_id", string(id),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// release returns a reservation whose transaction did not commit.
func (l *Ledger) release(ctx context.Context, op string, id models.HoldID) {
	railCtx := context.WithValue(ctx, guardKey{l}, struct{}{})
	if err := l.rail.Release(railCtx, id); err != nil {
		l.logger.ErrorContext(ctx, "ledger_settlement_release_failed",
			"operation", op,
			"hold_id", string(id),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// publish runs under the writer lock so the log sees events in commit order.
func (l *Ledger) publish(ctx context.Context, caller domain.AccountID, events []audit.Event) {
	if l.events == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	now := l.clock()
	for _, e := range events {
		e.Actor = caller
		e.RequestID = requestID
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if err := l.events.Emit(ctx, e); err != nil {
			// State is committed; losing the event is logged, not returned.
			l.logger.ErrorContext(ctx, "failed to publish ledger event",
				"error", err,
				"kind", e.Kind,
				"request_id", requestID,
			)
		}
	}
}

// read runs fn under the shared lock.
func (l *Ledger) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(ctx)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		return string(dErrors.CodeInternal)
	}
	return dErrors.MessageOf(err)
}

func (l *Ledger) loadConfig(ctx context.Context, st store.Store) (*models.Config, error) {
	cfg, err := st.LoadConfig(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger config")
	}
	return cfg, nil
}

func (l *Ledger) saveConfig(ctx context.Context, st store.Store, cfg *models.Config) error {
	if err := st.SaveConfig(ctx, cfg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save ledger config")
	}
	return nil
}

// findUser returns the stored record or the zero record for unknown accounts.
func (l *Ledger) findUser(ctx context.Context, st store.Store, account domain.AccountID) (*models.UserRecord, error) {
	u, err := st.FindUser(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.EmptyUser(account), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

func (l *Ledger) findTransaction(ctx context.Context, st store.Store, id domain.TxID) (*models.Transaction, error) {
	tx, err := st.FindTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}
	return tx, nil
}

func (l *Ledger) loadHoldings(ctx context.Context, st store.Store) (models.Holdings, error) {
	h, err := st.LoadHoldings(ctx)
	if err != nil {
		return models.Holdings{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load holdings")
	}
	return h, nil
}

func (l *Ledger) saveHoldings(ctx context.Context, st store.Store, h models.Holdings) error {
	if err := st.SaveHoldings(ctx, h); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save holdings")
	}
	return nil
}

func requireOwner(cfg *models.Config, caller domain.AccountID) error {
	if !cfg.IsOwner(caller) {
		return models.ErrOwnableUnauthorizedAccount
	}
	return nil
}

func requireOperator(cfg *models.Config, caller domain.AccountID) error {
	if !cfg.CanOperate(caller) {
		return models.ErrNotAuthorized
	}
	return nil
}
