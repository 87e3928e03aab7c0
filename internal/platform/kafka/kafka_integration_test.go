//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"remit/internal/platform/kafka"
	"remit/pkg/domain"
	audit "remit/pkg/platform/audit"
	"remit/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	brokers []string
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

func (s *ProducerSuite) TestDeliverAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "ledger.events." + time.Now().Format("150405.000")
	producer, err := kafka.NewProducer(kafka.Config{Brokers: s.brokers, Topic: topic, Partitions: 1})
	s.Require().NoError(err)
	defer func() { _ = producer.Close(ctx) }()

	s.Require().NoError(producer.EnsureTopic(ctx))
	s.Require().NoError(producer.EnsureTopic(ctx), "existing topic is not an error")
	s.Require().NoError(producer.Ping(ctx))

	account := domain.MustParseAccountID("0x1111111111111111111111111111111111111111")
	events := []audit.Event{
		{ID: "evt_1", Seq: 1, Kind: audit.EventUserVerified, Category: audit.CategoryCompliance, Account: account, Timestamp: time.Now().UTC()},
		{ID: "evt_2", Seq: 2, Kind: audit.EventFundsReceived, Category: audit.CategoryCompliance, Account: account, Amount: domain.NewAmount(5), Timestamp: time.Now().UTC()},
	}
	s.Require().NoError(producer.Deliver(ctx, events))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []audit.Event
	for len(got) < len(events) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			var e audit.Event
			require.NoError(s.T(), json.Unmarshal(r.Value, &e))
			s.Equal(account.Hex(), string(r.Key))
			got = append(got, e)
		})
	}
	s.Equal(uint64(1), got[0].Seq)
	s.Equal(audit.EventFundsReceived, got[1].Kind)
	s.Equal("5", got[1].Amount.String())
}
