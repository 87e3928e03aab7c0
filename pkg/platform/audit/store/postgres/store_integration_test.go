//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"remit/pkg/domain"
	audit "remit/pkg/platform/audit"
	"remit/pkg/platform/audit/store/postgres"
	"remit/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(s.ctx))
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "audit_events"))
}

func (s *AuditStoreSuite) TestAppendAssignsSequence() {
	account := domain.MustParseAccountID("0x1111111111111111111111111111111111111111")
	bps := uint16(75)
	enabled := true
	ts := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	first := &audit.Event{Kind: audit.EventFeeRateUpdated, FeeRateBps: &bps, Actor: account, Timestamp: ts}
	second := &audit.Event{Kind: audit.EventOperatorUpdated, Account: account, Enabled: &enabled, Timestamp: ts}
	third := &audit.Event{Kind: audit.EventTransactionCreated, TxID: domain.TxID{9}, Account: account,
		Amount: domain.NewAmount(1000), Fee: domain.NewAmount(5), Timestamp: ts, RequestID: "req-1"}

	for _, e := range []*audit.Event{first, second, third} {
		s.Require().NoError(s.store.Append(s.ctx, e))
	}
	s.Equal(uint64(1), first.Seq)
	s.Equal(uint64(3), third.Seq)
	s.Contains(first.ID, audit.IDPrefix+"_")
	s.Equal(audit.CategoryOperations, first.Category)

	all, err := s.store.ListAfter(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Require().NotNil(all[0].FeeRateBps)
	s.Equal(uint16(75), *all[0].FeeRateBps)
	s.Equal(account, all[0].Actor)
	s.Nil(all[0].Enabled)
	s.True(*all[1].Enabled)
	s.Equal(domain.TxID{9}, all[2].TxID)
	s.Equal("5", all[2].Fee.String())
	s.Equal("req-1", all[2].RequestID)
	s.True(ts.Equal(all[2].Timestamp))

	page, err := s.store.ListAfter(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(uint64(2), page[0].Seq)
}
