// Package kafka publishes registry events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"namereg/internal/events"
	"namereg/internal/registry/models"
)

const (
	headerEventKind = "event_kind"
	headerEventID   = "event_id"
)

// Publisher produces registry events to one topic. Records are keyed by
// name hash so every event for a name lands on one partition in order.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*config)

type config struct {
	clientID string
	logger   *slog.Logger
	extra    []kgo.Opt
}

func WithClientID(id string) Option {
	return func(c *config) {
		if id != "" {
			c.clientID = id
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClientOpts appends raw franz-go client options.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *config) {
		c.extra = append(c.extra, opts...)
	}
}

// NewPublisher connects a producer for topic. The client is lazy; use Ping
// to check the brokers.
func NewPublisher(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	cfg := config{clientID: "namereg"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	kopts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(cfg.clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, cfg.extra...)
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Publisher{
		client: client,
		topic:  topic,
		logger: cfg.logger.With("component", "kafka_publisher", "topic", topic),
	}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resps, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, err)
	}
	for _, resp := range resps {
		if resp.Err == nil {
			p.logger.InfoContext(ctx, "kafka topic created", "partitions", partitions)
			continue
		}
		if errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("kafka: create topic %s: %w", resp.Topic, resp.Err)
	}
	return nil
}

// Publish produces events synchronously and returns the first failure.
func (p *Publisher) Publish(ctx context.Context, batch []models.Event) error {
	if len(batch) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(batch))
	for _, e := range batch {
		rec, err := newRecord(p.topic, e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// Ping checks that a broker is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	p.client.Close()
}

func newRecord(topic string, e models.Event) (*kgo.Record, error) {
	value, err := json.Marshal(events.FromEvent(e))
	if err != nil {
		return nil, fmt.Errorf("kafka: encode event %d: %w", e.Seq, err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(events.Key(e)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerEventKind, Value: []byte(e.Kind)},
			{Key: headerEventID, Value: []byte(e.ID.String())},
		},
	}, nil
}
