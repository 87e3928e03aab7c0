package service

import (
	"context"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	"remit/pkg/platform/audit"
)

// FeeQuote is a fee together with the rate that produced it.
type FeeQuote struct {
	Amount     domain.Amount
	Fee        domain.Amount
	FeeRateBps uint16
}

// QuoteFee prices amount at the current rate. Fee and rate come from the same
// config read, so a concurrent SetFeeRate cannot split them.
func (l *Ledger) QuoteFee(ctx context.Context, amount domain.Amount) (FeeQuote, error) {
	var quote FeeQuote
	err := l.read(ctx, func(ctx context.Context) error {
		cfg, err := l.loadConfig(ctx, l.backend)
		if err != nil {
			return err
		}
		quote = FeeQuote{
			Amount:     amount,
			Fee:        models.CalculateFee(amount, cfg.FeeRateBps),
			FeeRateBps: cfg.FeeRateBps,
		}
		return nil
	})
	return quote, err
}

// CalculateFee returns the fee the current rate charges on amount.
func (l *Ledger) CalculateFee(ctx context.Context, amount domain.Amount) (domain.Amount, error) {
	quote, err := l.QuoteFee(ctx, amount)
	if err != nil {
		return domain.Amount{}, err
	}
	return quote.Fee, nil
}

// SetFeeRate changes the rate for future transactions. Existing transactions
// keep the fee frozen at creation. Ownership is checked before the rate.
func (l *Ledger) SetFeeRate(ctx context.Context, caller domain.AccountID, bps uint64) error {
	return l.mutate(ctx, "set_fee_rate", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		if err := models.ValidateFeeRate(bps); err != nil {
			return err
		}
		rate := uint16(bps) //nolint:gosec // bounded by ValidateFeeRate
		cfg.FeeRateBps = rate
		if err := l.saveConfig(ctx, st, cfg); err != nil {
			return err
		}
		fx.emit(audit.Event{Kind: audit.EventFeeRateUpdated, FeeRateBps: &rate})
		fx.afterCommit(func() {
			l.logger.InfoContext(ctx, "fee_rate_updated", "fee_rate_bps", rate)
		})
		return nil
	})
}
