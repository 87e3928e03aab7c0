// Package treasury is an in-process funds rail. It keeps a balance per
// external account plus the vault that backs ledger custody.
package treasury

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"remit/internal/ledger/models"
	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
)

var (
	ErrInsufficientFunds = dErrors.New(dErrors.CodeConflict, "insufficient funds")
	ErrVaultShortfall    = dErrors.New(dErrors.CodeInvariantViolation, "vault shortfall")
	ErrInvalidCredit     = dErrors.New(dErrors.CodeBadRequest, "credit must be a positive amount to a non-zero account")
	ErrUnknownHold       = dErrors.New(dErrors.CodeNotFound, "unknown hold")
)

type Treasury struct {
	mu       sync.RWMutex
	balances map[domain.AccountID]domain.Amount
	vault    domain.Amount
	holds    map[models.HoldID]models.Settlement
	logger   *slog.Logger
}

type Option func(*Treasury)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Treasury) {
		t.logger = logger
	}
}

func New(opts ...Option) *Treasury {
	t := &Treasury{
		balances: make(map[domain.AccountID]domain.Amount),
		holds:    make(map[models.HoldID]models.Settlement),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Credit adds externally sourced funds to account.
func (t *Treasury) Credit(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	if account.IsZero() || amount.IsZero() {
		return ErrInvalidCredit
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := t.balances[account].Add(amount)
	if err != nil {
		return err
	}
	t.balances[account] = next
	t.logger.InfoContext(ctx, "treasury_credited", "account", account.String(), "amount", amount.String())
	return nil
}

func (t *Treasury) BalanceOf(account domain.AccountID) domain.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[account]
}

// Vault returns the value currently held on behalf of the ledger.
func (t *Treasury) Vault() domain.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vault
}

// Reserve debits the inflow into the vault and earmarks vault value for every
// outflow. Payees are credited only by Capture; Release undoes the hold.
func (t *Treasury) Reserve(ctx context.Context, s models.Settlement) (models.HoldID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vault := t.vault
	var debited domain.Amount
	if in := s.Inflow; in != nil {
		var err error
		if debited, err = t.balances[in.Account].Sub(in.Amount); err != nil {
			return "", ErrInsufficientFunds
		}
		if vault, err = vault.Add(in.Amount); err != nil {
			return "", err
		}
	}
	credits, err := t.pendingCredits(s)
	if err != nil {
		return "", err
	}
	for _, out := range s.Outflows {
		if vault, err = vault.Sub(out.Amount); err != nil {
			return "", ErrVaultShortfall
		}
	}
	for a, v := range credits {
		if _, err := t.balances[a].Add(v); err != nil {
			return "", err
		}
	}

	if in := s.Inflow; in != nil {
		t.balances[in.Account] = debited
	}
	t.vault = vault
	id := models.HoldID(uuid.NewString())
	t.holds[id] = s
	t.logger.DebugContext(ctx, "treasury_hold_reserved", "hold_id", string(id), "outflows", len(s.Outflows))
	return id, nil
}

// Capture pays the outflows of a hold. It only fails for unknown holds or a
// payee balance that grew past the amount limit since Reserve.
func (t *Treasury) Capture(ctx context.Context, id models.HoldID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.holds[id]
	if !ok {
		return ErrUnknownHold
	}
	credits, err := t.pendingCredits(s)
	if err != nil {
		return err
	}
	next := make(map[domain.AccountID]domain.Amount, len(credits))
	for a, v := range credits {
		if next[a], err = t.balances[a].Add(v); err != nil {
			return err
		}
	}
	for a, v := range next {
		t.balances[a] = v
	}
	delete(t.holds, id)
	t.logger.DebugContext(ctx, "treasury_hold_captured", "hold_id", string(id))
	return nil
}

// Release returns held value: the inflow goes back to its account and the
// earmarked outflows back to the vault.
func (t *Treasury) Release(ctx context.Context, id models.HoldID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.holds[id]
	if !ok {
		return ErrUnknownHold
	}
	vault := t.vault
	var err error
	for _, out := range s.Outflows {
		if vault, err = vault.Add(out.Amount); err != nil {
			return err
		}
	}
	if in := s.Inflow; in != nil {
		if vault, err = vault.Sub(in.Amount); err != nil {
			return ErrVaultShortfall
		}
		refunded, err := t.balances[in.Account].Add(in.Amount)
		if err != nil {
			return err
		}
		t.balances[in.Account] = refunded
	}
	t.vault = vault
	delete(t.holds, id)
	t.logger.InfoContext(ctx, "treasury_hold_released", "hold_id", string(id))
	return nil
}

// Settle reserves and captures in one step.
func (t *Treasury) Settle(ctx context.Context, s models.Settlement) error {
	id, err := t.Reserve(ctx, s)
	if err != nil {
		return err
	}
	return t.Capture(ctx, id)
}

// Holds reports how many reservations are outstanding.
func (t *Treasury) Holds() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.holds)
}

// pendingCredits sums outflows per payee. Callers hold t.mu.
func (t *Treasury) pendingCredits(s models.Settlement) (map[domain.AccountID]domain.Amount, error) {
	credits := make(map[domain.AccountID]domain.Amount, len(s.Outflows))
	for _, out := range s.Outflows {
		sum, err := credits[out.Account].Add(out.Amount)
		if err != nil {
			return nil, err
		}
		credits[out.Account] = sum
	}
	return credits, nil
}
