package service

import (
	"context"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
	"remit/pkg/platform/audit"
)

// VerifyUser marks account as verified. Re-verifying is a no-op apart from
// the event.
func (l *Ledger) VerifyUser(ctx context.Context, caller, account domain.AccountID) error {
	return l.mutate(ctx, "verify_user", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOperator(cfg, caller); err != nil {
			return err
		}
		if account.IsZero() {
			return models.ErrInvalidAccount
		}
		if err := st.MarkVerified(ctx, []domain.AccountID{account}, l.clock()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify user")
		}
		fx.emit(audit.Event{Kind: audit.EventUserVerified, Account: account})
		fx.afterCommit(func() {
			if l.metrics != nil {
				l.metrics.AddVerified(1)
			}
			l.logger.InfoContext(ctx, "user_verified", "account", account.String())
		})
		return nil
	})
}

// BatchVerifyUsers verifies every account in one atomic step. The whole batch
// is validated first and written with a single store call, so cost is linear
// in the batch size.
func (l *Ledger) BatchVerifyUsers(ctx context.Context, caller domain.AccountID, accounts []domain.AccountID) error {
	return l.mutate(ctx, "batch_verify_users", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOperator(cfg, caller); err != nil {
			return err
		}
		if len(accounts) == 0 {
			return models.ErrInvalidAccount
		}
		if len(accounts) > l.maxBatch {
			return models.ErrBatchTooLarge
		}
		for _, a := range accounts {
			if a.IsZero() {
				return models.ErrInvalidAccount
			}
		}
		if err := st.MarkVerified(ctx, accounts, l.clock()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify users")
		}

		fx.events = make([]audit.Event, 0, len(accounts))
		for _, a := range accounts {
			fx.emit(audit.Event{Kind: audit.EventUserVerified, Account: a})
		}
		fx.afterCommit(func() {
			if l.metrics != nil {
				l.metrics.AddVerified(len(accounts))
			}
			l.logger.InfoContext(ctx, "users_verified", "count", len(accounts))
		})
		return nil
	})
}

// GetUserInfo returns the record for account, or a zero record with
// Exists=false when the account is unknown.
func (l *Ledger) GetUserInfo(ctx context.Context, account domain.AccountID) (*models.UserRecord, error) {
	var out *models.UserRecord
	err := l.read(ctx, func(ctx context.Context) error {
		u, err := l.findUser(ctx, l.backend, account)
		out = u
		return err
	})
	return out, err
}
