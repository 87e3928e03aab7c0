package service

import (
	"context"
	"errors"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
	"remit/pkg/platform/audit"
	"remit/pkg/platform/sentinel"
)

// CreateTransaction escrows amount for recipient. The caller supplies
// supplied; the fee goes to the collector and anything above amount+fee is
// refunded in the same settlement.
func (l *Ledger) CreateTransaction(ctx context.Context, caller, recipient domain.AccountID, amount, supplied domain.Amount) (*models.Transaction, error) {
	var created *models.Transaction
	err := l.mutate(ctx, "create_transaction", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return models.ErrContractIsPaused
		}
		sender, err := l.findUser(ctx, st, caller)
		if err != nil {
			return err
		}
		if !sender.IsVerified {
			return models.ErrUserNotVerified
		}
		if recipient.IsZero() {
			return models.ErrInvalidRecipient
		}
		if amount.IsZero() {
			return models.ErrInvalidAmount
		}

		fee := models.CalculateFee(amount, cfg.FeeRateBps)
		total, err := amount.Add(fee)
		if err != nil {
			// supplied is bounded by the same width, so it cannot cover total.
			return models.ErrInsufficientPayment
		}
		if supplied.LessThan(total) {
			return models.ErrInsufficientPayment
		}
		excess, err := supplied.Sub(total)
		if err != nil {
			return err
		}

		index, err := st.CountTransactions(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count transactions")
		}
		now := l.clock()
		id, err := models.DeriveTxID(cfg.LedgerID, index, caller, recipient, amount, fee, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive transaction id")
		}
		tx := &models.Transaction{
			ID:        id,
			Index:     index,
			Sender:    caller,
			Recipient: recipient,
			Amount:    amount,
			Fee:       fee,
			Status:    models.StatusPending,
			CreatedAt: now,
		}
		if err := st.InsertTransaction(ctx, tx); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "transaction id collision")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert transaction")
		}

		h, err := l.loadHoldings(ctx, st)
		if err != nil {
			return err
		}
		if h.Custody, err = h.Custody.Add(amount); err != nil {
			return err
		}
		if h.Escrowed, err = h.Escrowed.Add(amount); err != nil {
			return err
		}
		if err := l.saveHoldings(ctx, st, h); err != nil {
			return err
		}

		fx.settlement.Collect(caller, supplied, models.ReasonPayment)
		fx.settlement.Pay(cfg.FeeCollector, fee, models.ReasonFee)
		fx.settlement.Pay(caller, excess, models.ReasonOverpay)

		fx.emit(audit.Event{
			Kind:         audit.EventTransactionCreated,
			TxID:         id,
			Account:      caller,
			Counterparty: recipient,
			Amount:       amount,
			Fee:          fee,
		})
		fx.afterCommit(func() {
			if l.metrics != nil {
				l.metrics.AddFees(fee)
			}
			l.logger.InfoContext(ctx, "transaction_created",
				"tx_id", id.String(),
				"index", index,
				"sender", caller.String(),
				"recipient", recipient.String(),
				"amount", amount.String(),
				"fee", fee.String(),
			)
		})
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CompleteTransaction pays the escrowed amount to the recipient. The status
// is persisted as Completed before the payout is attempted.
func (l *Ledger) CompleteTransaction(ctx context.Context, caller domain.AccountID, id domain.TxID) error {
	return l.mutate(ctx, "complete_transaction", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		if err := requireOperator(cfg, caller); err != nil {
			return err
		}
		tx, err := l.findTransaction(ctx, st, id)
		if err != nil {
			return err
		}
		if err := tx.Complete(l.clock()); err != nil {
			return err
		}
		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update transaction")
		}

		sender, err := l.findUser(ctx, st, tx.Sender)
		if err != nil {
			return err
		}
		if sender.TotalSent, err = sender.TotalSent.Add(tx.Amount); err != nil {
			return err
		}
		sender.TransactionCount++
		if err := st.SaveUser(ctx, sender); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save sender")
		}

		// Loaded after the sender is saved so a self-transfer sees both updates.
		recipient, err := l.findUser(ctx, st, tx.Recipient)
		if err != nil {
			return err
		}
		if recipient.TotalReceived, err = recipient.TotalReceived.Add(tx.Amount); err != nil {
			return err
		}
		if err := st.SaveUser(ctx, recipient); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save recipient")
		}

		if err := l.releaseEscrow(ctx, st, tx.Amount); err != nil {
			return err
		}
		fx.settlement.Pay(tx.Recipient, tx.Amount, models.ReasonPayout)

		fx.emit(audit.Event{Kind: audit.EventTransactionCompleted, TxID: tx.ID, Account: tx.Sender, Counterparty: tx.Recipient, Amount: tx.Amount})
		fx.afterCommit(func() {
			if l.metrics != nil {
				l.metrics.AddVolume(tx.Amount)
			}
			l.logger.InfoContext(ctx, "transaction_completed", "tx_id", tx.ID.String())
		})
		return nil
	})
}

// CancelTransaction refunds the escrowed amount to the sender. The fee is not
// refunded.
func (l *Ledger) CancelTransaction(ctx context.Context, caller domain.AccountID, id domain.TxID) error {
	return l.mutate(ctx, "cancel_transaction", caller, func(ctx context.Context, st store.Store, fx *effects) error {
		cfg, err := l.loadConfig(ctx, st)
		if err != nil {
			return err
		}
		tx, err := l.findTransaction(ctx, st, id)
		if err != nil {
			return err
		}
		if caller != tx.Sender && !cfg.CanOperate(caller) {
			return models.ErrNotAuthorized
		}
		if err := tx.Cancel(l.clock()); err != nil {
			return err
		}
		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update transaction")
		}
		if err := l.releaseEscrow(ctx, st, tx.Amount); err != nil {
			return err
		}
		fx.settlement.Pay(tx.Sender, tx.Amount, models.ReasonRefund)

		fx.emit(audit.Event{Kind: audit.EventTransactionCancelled, TxID: tx.ID, Account: tx.Sender, Amount: tx.Amount})
		fx.afterCommit(func() {
			l.logger.InfoContext(ctx, "transaction_cancelled", "tx_id", tx.ID.String())
		})
		return nil
	})
}

// releaseEscrow takes amount out of escrow and custody.
func (l *Ledger) releaseEscrow(ctx context.Context, st store.Store, amount domain.Amount) error {
	h, err := l.loadHoldings(ctx, st)
	if err != nil {
		return err
	}
	if h.Escrowed, err = h.Escrowed.Sub(amount); err != nil {
		return models.ErrHoldingsCorrupt
	}
	if h.Custody, err = h.Custody.Sub(amount); err != nil {
		return models.ErrHoldingsCorrupt
	}
	return l.saveHoldings(ctx, st, h)
}

// GetTransaction returns the transaction with id.
func (l *Ledger) GetTransaction(ctx context.Context, id domain.TxID) (*models.Transaction, error) {
	var out *models.Transaction
	err := l.read(ctx, func(ctx context.Context) error {
		tx, err := l.findTransaction(ctx, l.backend, id)
		out = tx
		return err
	})
	return out, err
}

// GetTransactionID returns the id created at position index.
func (l *Ledger) GetTransactionID(ctx context.Context, index uint64) (domain.TxID, error) {
	var out domain.TxID
	err := l.read(ctx, func(ctx context.Context) error {
		id, err := l.backend.TransactionIDAt(ctx, index)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.ErrTransactionNotFound
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction id")
		}
		out = id
		return nil
	})
	return out, err
}

// GetTransactionCount returns how many transactions were ever created.
func (l *Ledger) GetTransactionCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := l.read(ctx, func(ctx context.Context) error {
		count, err := l.backend.CountTransactions(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count transactions")
		}
		n = count
		return nil
	})
	return n, err
}
