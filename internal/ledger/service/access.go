package service

import (
	"context"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	"remit/pkg/platform/audit"
)

// SetAuthorizedOperator grants or revokes the operator role.
func (l *Ledger) SetAuthorizedOperator(ctx context.Context, caller, account domain.AccountID, enabled bool) error {
	return l.mutate(ctx, "set_authorized_operator", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		if account.IsZero() {
			return models.ErrInvalidAccount
		}
		cfg.SetOperator(account, enabled)
		if err := l.saveConfig(ctx, st, cfg); err != nil {
			return err
		}
		fx.emit(audit.Event{Kind: audit.EventOperatorUpdated, Account: account, Enabled: &enabled})
		fx.afterCommit(func() {
			l.logger.InfoContext(ctx, "operator_updated", "account", account.String(), "enabled", enabled)
		})
		return nil
	})
}

func (l *Ledger) SetFeeCollector(ctx context.Context, caller, collector domain.AccountID) error {
	return l.mutate(ctx, "set_fee_collector", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		if collector.IsZero() {
			return models.ErrInvalidFeeCollector
		}
		cfg.FeeCollector = collector
		if err := l.saveConfig(ctx, st, cfg); err != nil {
			return err
		}
		fx.emit(audit.Event{Kind: audit.EventFeeCollectorUpdated, Account: collector})
		return nil
	})
}

// SetPaused blocks or unblocks transaction creation. Completion and
// cancellation keep working while paused.
func (l *Ledger) SetPaused(ctx context.Context, caller domain.AccountID, paused bool) error {
	return l.mutate(ctx, "set_paused", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		cfg.Paused = paused
		if err := l.saveConfig(ctx, st, cfg); err != nil {
			return err
		}
		fx.emit(audit.Event{Kind: audit.EventContractPaused, Enabled: &paused})
		fx.afterCommit(func() {
			if l.metrics != nil {
				l.metrics.SetPaused(paused)
			}
			l.logger.WarnContext(ctx, "ledger_pause_changed", "paused", paused)
		})
		return nil
	})
}

func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner domain.AccountID) error {
	return l.mutate(ctx, "transfer_ownership", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		if newOwner.IsZero() {
			return models.ErrOwnableInvalidOwner
		}
		previous := cfg.Owner
		cfg.Owner = newOwner
		if err := l.saveConfig(ctx, st, cfg); err != nil {
			return err
		}
		fx.emit(audit.Event{Kind: audit.EventOwnershipTransferred, Account: newOwner, Counterparty: previous})
		fx.afterCommit(func() {
			l.logger.WarnContext(ctx, "ownership_transferred", "previous_owner", previous.String(), "new_owner", newOwner.String())
		})
		return nil
	})
}

// EmergencyWithdraw sweeps the residual (custody not backing a pending
// transaction) to the owner and returns the swept amount.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, caller domain.AccountID) (domain.Amount, error) {
	var swept domain.Amount
	err := l.mutate(ctx, "emergency_withdraw", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		h, err := l.loadHoldings(ctx, st)
		if err != nil {
			return err
		}
		residual, err := h.Residual()
		if err != nil {
			return err
		}
		if residual.IsZero() {
			return models.ErrNoFeesToWithdraw
		}
		h.Custody = h.Escrowed
		if err := l.saveHoldings(ctx, st, h); err != nil {
			return err
		}
		fx.settlement.Pay(cfg.Owner, residual, models.ReasonSweep)
		fx.emit(audit.Event{Kind: audit.EventEmergencyWithdrawal, Account: cfg.Owner, Amount: residual})
		fx.afterCommit(func() {
			l.logger.WarnContext(ctx, "emergency_withdrawal", "owner", cfg.Owner.String(), "amount", residual.String())
		})
		swept = residual
		return nil
	})
	if err != nil {
		return domain.Amount{}, err
	}
	return swept, nil
}

// ReceiveFunds accepts an unsolicited deposit into custody. Deposits are
// residual until swept by EmergencyWithdraw.
func (l *Ledger) ReceiveFunds(ctx context.Context, caller domain.AccountID, amount domain.Amount) error {
	return l.mutate(ctx, "receive_funds", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		if caller.IsZero() {
			return models.ErrInvalidAccount
		}
		if amount.IsZero() {
			return models.ErrInvalidAmount
		}
		h, err := l.loadHoldings(ctx, st)
		if err != nil {
			return err
		}
		if h.Custody, err = h.Custody.Add(amount); err != nil {
			return err
		}
		if err := l.saveHoldings(ctx, st, h); err != nil {
			return err
		}
		fx.settlement.Collect(caller, amount, models.ReasonDeposit)
		fx.emit(audit.Event{Kind: audit.EventFundsReceived, Account: caller, Amount: amount})
		return nil
	})
}

// Config returns a copy of the current configuration.
func (l *Ledger) Config(ctx context.Context) (*models.Config, error) {
	var out *models.Config
	err := l.read(ctx, func(ctx context.Context) error {
		cfg, err := l.loadConfig(ctx, l.backend)
		out = cfg
		return err
	})
	return out, err
}

// Holdings returns custody and escrow totals.
func (l *Ledger) Holdings(ctx context.Context) (models.Holdings, error) {
	var out models.Holdings
	err := l.read(ctx, func(ctx context.Context) error {
		h, err := l.loadHoldings(ctx, l.backend)
		out = h
		return err
	})
	return out, err
}
