package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/pkg/domain"
	"remit/pkg/platform/sentinel"
)

// InMemory keeps ledger state in maps. Transactions are serialized and rolled
// back by replaying an undo journal.
type InMemory struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	config   *models.Config
	users    map[domain.AccountID]models.UserRecord
	txs      map[domain.TxID]models.Transaction
	byIndex  []domain.TxID
	holdings models.Holdings
}

var _ store.Backend = (*InMemory)(nil)

// New creates an empty in-memory backend.
func New() *InMemory {
	return &InMemory{
		users: make(map[domain.AccountID]models.UserRecord),
		txs:   make(map[domain.TxID]models.Transaction),
	}
}

// RunInTx runs fn against a journaled view. Writes are visible to readers as
// they happen; a failed fn has them undone before RunInTx returns.
func (m *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, s store.Store) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	j := &journaled{InMemory: m}
	defer func() {
		if p := recover(); p != nil {
			j.rollback()
			panic(p)
		}
		if err != nil {
			j.rollback()
		}
	}()
	return fn(ctx, j)
}

func (m *InMemory) LoadConfig(_ context.Context) (*models.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, fmt.Errorf("ledger config: %w", sentinel.ErrNotFound)
	}
	return m.config.Clone(), nil
}

func (m *InMemory) SaveConfig(_ context.Context, cfg *models.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg.Clone()
	return nil
}

func (m *InMemory) FindUser(_ context.Context, account domain.AccountID) (*models.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[account]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", account, sentinel.ErrNotFound)
	}
	return &u, nil
}

func (m *InMemory) SaveUser(_ context.Context, user *models.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Account] = *user
	return nil
}

func (m *InMemory) MarkVerified(_ context.Context, accounts []domain.AccountID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range accounts {
		u, ok := m.users[a]
		if !ok {
			u = *models.EmptyUser(a)
		}
		u.MarkVerified(at)
		m.users[a] = u
	}
	return nil
}

func (m *InMemory) FindTransaction(_ context.Context, id domain.TxID) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return &t, nil
}

func (m *InMemory) InsertTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[t.ID]; ok {
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrConflict)
	}
	if t.Index != uint64(len(m.byIndex)) {
		return fmt.Errorf("transaction index %d: %w", t.Index, sentinel.ErrConflict)
	}
	m.txs[t.ID] = *t
	m.byIndex = append(m.byIndex, t.ID)
	return nil
}

func (m *InMemory) UpdateTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[t.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrNotFound)
	}
	m.txs[t.ID] = *t
	return nil
}

func (m *InMemory) TransactionIDAt(_ context.Context, index uint64) (domain.TxID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index >= uint64(len(m.byIndex)) {
		return domain.TxID{}, fmt.Errorf("transaction index %d: %w", index, sentinel.ErrNotFound)
	}
	return m.byIndex[index], nil
}

func (m *InMemory) CountTransactions(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.byIndex)), nil
}

func (m *InMemory) LoadHoldings(_ context.Context) (models.Holdings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holdings, nil
}

func (m *InMemory) SaveHoldings(_ context.Context, h models.Holdings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings = h
	return nil
}
