//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"remit/internal/ledger/models"
	"remit/internal/ledger/store"
	"remit/internal/ledger/store/postgres"
	"remit/pkg/domain"
	"remit/pkg/platform/sentinel"
	"remit/pkg/testutil/containers"
)

var (
	alice = domain.MustParseAccountID("0x1111111111111111111111111111111111111111")
	bob   = domain.MustParseAccountID("0x2222222222222222222222222222222222222222")
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.postgres.TruncateTables(s.ctx,
		"transactions", "users", "ledger_operators", "ledger_config", "ledger_holdings"))
}

func (s *PostgresStoreSuite) newTx(index uint64, amount domain.Amount) *models.Transaction {
	id, err := models.DeriveTxID([16]byte{7}, index, alice, bob, amount, domain.NewAmount(0), s.now)
	s.Require().NoError(err)
	return &models.Transaction{
		ID: id, Index: index, Sender: alice, Recipient: bob,
		Amount: amount, Fee: domain.NewAmount(0), CreatedAt: s.now,
	}
}

func (s *PostgresStoreSuite) TestConfigRoundTrip() {
	cfg := &models.Config{LedgerID: [16]byte{1, 2, 3}, Owner: alice, FeeCollector: bob, FeeRateBps: 50}
	cfg.SetOperator(bob, true)
	s.Require().NoError(s.store.SaveConfig(s.ctx, cfg))

	got, err := s.store.LoadConfig(s.ctx)
	s.Require().NoError(err)
	s.Equal(cfg.LedgerID, got.LedgerID)
	s.Equal(alice, got.Owner)
	s.True(got.IsOperator(bob))

	cfg.SetOperator(bob, false)
	cfg.Paused = true
	s.Require().NoError(s.store.SaveConfig(s.ctx, cfg))
	got, err = s.store.LoadConfig(s.ctx)
	s.Require().NoError(err)
	s.False(got.IsOperator(bob))
	s.True(got.Paused)
}

func (s *PostgresStoreSuite) TestBatchVerifyAndUsers() {
	s.Require().NoError(s.store.MarkVerified(s.ctx, []domain.AccountID{alice, bob, alice}, s.now))

	u, err := s.store.FindUser(s.ctx, alice)
	s.Require().NoError(err)
	s.True(u.IsVerified)
	s.Require().NotNil(u.VerifiedAt)
	s.True(s.now.Equal(*u.VerifiedAt))

	u.TotalSent = domain.MaxAmount()
	u.TransactionCount = 3
	s.Require().NoError(s.store.SaveUser(s.ctx, u))

	got, err := s.store.FindUser(s.ctx, alice)
	s.Require().NoError(err)
	s.True(got.TotalSent.Equal(domain.MaxAmount()), "128-bit values survive NUMERIC(39,0)")
	s.Equal(uint64(3), got.TransactionCount)
}

func (s *PostgresStoreSuite) TestTransactions() {
	big := domain.MustParseAmount("340282366920938463463374607431768211455")
	t0 := s.newTx(0, big)
	s.Require().NoError(s.store.InsertTransaction(s.ctx, t0))
	s.ErrorIs(s.store.InsertTransaction(s.ctx, t0), sentinel.ErrConflict)

	got, err := s.store.FindTransaction(s.ctx, t0.ID)
	s.Require().NoError(err)
	s.True(got.Amount.Equal(big))
	s.Equal(models.StatusPending, got.Status)

	s.Require().NoError(got.Complete(s.now))
	s.Require().NoError(s.store.UpdateTransaction(s.ctx, got))

	id, err := s.store.TransactionIDAt(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(t0.ID, id)

	_, err = s.store.TransactionIDAt(s.ctx, 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRunInTxRollback() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, st store.Store) error {
		s.Require().NoError(st.InsertTransaction(ctx, s.newTx(0, domain.NewAmount(10))))
		s.Require().NoError(st.SaveHoldings(ctx, models.Holdings{Custody: domain.NewAmount(10), Escrowed: domain.NewAmount(10)}))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	n, err := s.store.CountTransactions(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	h, err := s.store.LoadHoldings(s.ctx)
	s.Require().NoError(err)
	s.True(h.Custody.IsZero())
}
