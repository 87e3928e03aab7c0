package memory

import (
	"context"
	"time"

	"remit/internal/ledger/models"
	"remit/pkg/domain"
)

// journaled records the prior value of everything it overwrites.
type journaled struct {
	*InMemory
	undo []func()
}

func (j *journaled) rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

func (j *journaled) SaveConfig(ctx context.Context, cfg *models.Config) error {
	j.mu.RLock()
	prev := j.config
	j.mu.RUnlock()
	j.undo = append(j.undo, func() { j.config = prev })
	return j.InMemory.SaveConfig(ctx, cfg)
}

func (j *journaled) rememberUser(account domain.AccountID) {
	j.mu.RLock()
	prev, existed := j.users[account]
	j.mu.RUnlock()
	j.undo = append(j.undo, func() {
		if existed {
			j.users[account] = prev
			return
		}
		delete(j.users, account)
	})
}

func (j *journaled) SaveUser(ctx context.Context, user *models.UserRecord) error {
	j.rememberUser(user.Account)
	return j.InMemory.SaveUser(ctx, user)
}

func (j *journaled) MarkVerified(ctx context.Context, accounts []domain.AccountID, at time.Time) error {
	for _, a := range accounts {
		j.rememberUser(a)
	}
	return j.InMemory.MarkVerified(ctx, accounts, at)
}

func (j *journaled) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	if err := j.InMemory.InsertTransaction(ctx, t); err != nil {
		return err
	}
	id := t.ID
	j.undo = append(j.undo, func() {
		delete(j.txs, id)
		j.byIndex = j.byIndex[:len(j.byIndex)-1]
	})
	return nil
}

func (j *journaled) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	j.mu.RLock()
	prev, ok := j.txs[t.ID]
	j.mu.RUnlock()
	if err := j.InMemory.UpdateTransaction(ctx, t); err != nil {
		return err
	}
	if ok {
		j.undo = append(j.undo, func() { j.txs[prev.ID] = prev })
	}
	return nil
}

func (j *journaled) SaveHoldings(ctx context.Context, h models.Holdings) error {
	j.mu.RLock()
	prev := j.holdings
	j.mu.RUnlock()
	j.undo = append(j.undo, func() { j.holdings = prev })
	return j.InMemory.SaveHoldings(ctx, h)
}
