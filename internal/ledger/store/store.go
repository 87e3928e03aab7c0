// Package store defines the persistence contract for the ledger. Backends live
// in subpackages; the service only sees these interfaces.
package store

import (
	"context"
	"time"

	"remit/internal/ledger/models"
	"remit/pkg/domain"
)

// Store reads and writes ledger state. Missing rows surface as
// sentinel.ErrNotFound; unique violations as sentinel.ErrConflict.
type Store interface {
	LoadConfig(ctx context.Context) (*models.Config, error)
	SaveConfig(ctx context.Context, cfg *models.Config) error

	FindUser(ctx context.Context, account domain.AccountID) (*models.UserRecord, error)
	SaveUser(ctx context.Context, user *models.UserRecord) error
	// MarkVerified verifies every account in one statement. Duplicates are fine.
	MarkVerified(ctx context.Context, accounts []domain.AccountID, at time.Time) error

	FindTransaction(ctx context.Context, id domain.TxID) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	TransactionIDAt(ctx context.Context, index uint64) (domain.TxID, error)
	CountTransactions(ctx context.Context) (uint64, error)

	LoadHoldings(ctx context.Context) (models.Holdings, error)
	SaveHoldings(ctx context.Context, h models.Holdings) error
}

// Transactor runs fn atomically. If fn returns an error nothing it wrote is
// kept.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Backend is a Store that can also run transactions.
type Backend interface {
	Store
	Transactor
}
