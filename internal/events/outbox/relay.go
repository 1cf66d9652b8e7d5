// Package outbox relays committed registry events to a message bus.
//
// Events are appended to the store in the same transaction as the state
// change they describe. The relay polls for unpublished events, publishes
// them in sequence order and marks them published afterwards, so delivery is
// at-least-once and never ahead of the committed state.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"namereg/internal/registry/models"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Source is the store side of the outbox.
type Source interface {
	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkPublished(ctx context.Context, seqs []int64) error
}

// Publisher delivers a batch of events in order. A nil error means every
// event in the batch was acknowledged.
type Publisher interface {
	Publish(ctx context.Context, events []models.Event) error
}

// Relay moves events from a Source to a Publisher.
type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func New(source Source, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "outbox")
	return r
}

// Run drains the outbox every interval until ctx is cancelled. Publish
// failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started",
		"interval", r.interval.String(),
		"batch_size", r.batchSize,
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.WithoutCancel(ctx), "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes pending events batch by batch until none remain, and
// returns how many were published. It stops at the first failure; the failed
// batch stays pending and is retried whole.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	published := 0
	for {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		events, err := r.source.PendingEvents(ctx, r.batchSize)
		if err != nil {
			return published, fmt.Errorf("load pending events: %w", err)
		}
		if len(events) == 0 {
			return published, nil
		}

		if err := r.publisher.Publish(ctx, events); err != nil {
			r.observeFailure()
			return published, fmt.Errorf("publish events from seq %d: %w", events[0].Seq, err)
		}

		seqs := make([]int64, len(events))
		for i, e := range events {
			seqs[i] = e.Seq
		}
		if err := r.source.MarkPublished(ctx, seqs); err != nil {
			// Already delivered; they will be published again.
			return published, fmt.Errorf("mark events published: %w", err)
		}
		published += len(events)
		r.observePublished(len(events))
		r.logger.DebugContext(ctx, "outbox batch published",
			"count", len(events),
			"first_seq", seqs[0],
			"last_seq", seqs[len(seqs)-1],
		)

		if len(events) < r.batchSize {
			return published, nil
		}
	}
}

func (r *Relay) observePublished(n int) {
	if r.metrics != nil {
		r.metrics.Published.Add(float64(n))
	}
}

func (r *Relay) observeFailure() {
	if r.metrics != nil {
		r.metrics.PublishFailures.Inc()
	}
}
