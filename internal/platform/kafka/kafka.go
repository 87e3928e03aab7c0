package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "remit/pkg/platform/audit"
)

// Config holds broker connection settings.
type Config struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// Producer writes ledger events to a single topic. It implements audit.Sink.
type Producer struct {
	client *kgo.Client
	cfg    Config
	logger *slog.Logger
}

var _ audit.Sink = (*Producer)(nil)

type Option func(*Producer)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Producer) {
		p.logger = logger
	}
}

// NewProducer builds a client with idempotent, fully acknowledged writes.
// Connections are opened lazily on first use.
func NewProducer(cfg Config, opts ...Option) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "remit"
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 3
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &Producer{client: client, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the events topic unless it already exists.
func (p *Producer) EnsureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, p.cfg.Partitions, p.cfg.ReplicationFactor, nil, p.cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.cfg.Topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.cfg.Topic, resp.Err)
	}
	return nil
}

// Deliver produces the batch and waits for every record to be acknowledged.
// Records sharing a partition key keep their relative order.
func (p *Producer) Deliver(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(events))
	for i := range events {
		rec, err := EventRecord(events[i])
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce %d events: %w", len(records), err)
	}
	p.logger.DebugContext(ctx, "events delivered",
		"topic", p.cfg.Topic,
		"count", len(records),
		"last_seq", events[len(events)-1].Seq,
	)
	return nil
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and releases connections.
func (p *Producer) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}

// EventRecord encodes an event as JSON keyed by its partition key. The
// topic is left empty so the client default applies.
func EventRecord(e audit.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", e.Seq, err)
	}
	return &kgo.Record{
		Key:   []byte(e.PartitionKey()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(e.Kind)},
			{Key: "category", Value: []byte(e.Category)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
		Timestamp: e.Timestamp,
	}, nil
}
