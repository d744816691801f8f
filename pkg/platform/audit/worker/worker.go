// Package worker relays outbox entries to the event broker.
//
// Delivery is at-least-once: an entry is marked published only after the broker
// acknowledged it, so a crash between the two steps republishes it. Consumers
// deduplicate on the payload id.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kiosk/internal/platform/kafka"
	audit "kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/circuit"
)

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay polls the outbox and publishes unpublished entries in creation order.
type Relay struct {
	store     audit.OutboxStore
	publisher Publisher
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *Metrics

	topicPrefix string
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) { r.breaker = b }
}

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

func WithTopicPrefix(prefix string) Option {
	return func(r *Relay) { r.topicPrefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func NewRelay(store audit.OutboxStore, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:       store,
		publisher:   publisher,
		logger:      slog.Default(),
		topicPrefix: "kiosk",
		interval:    time.Second,
		batchSize:   100,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("outbox-relay")
	}
	return r
}

// Topic returns the topic events of an aggregate are published to.
func (r *Relay) Topic(aggregate audit.AggregateType) string {
	return r.topicPrefix + "." + string(aggregate) + "-events"
}

// Topics lists every topic the relay may publish to.
func (r *Relay) Topics() []string {
	return []string{
		r.Topic(audit.AggregateOrder),
		r.Topic(audit.AggregateInsurance),
		r.Topic(audit.AggregatePatient),
	}
}

// Run relays until ctx is cancelled. Failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay failed",
				"error", err,
				"circuit", r.breaker.State().String(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were delivered.
// An open circuit skips the broker entirely until the next probe.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		if r.metrics != nil {
			r.metrics.IncSkipped()
		}
		return 0, nil
	}

	entries, err := r.store.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, len(entries))
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		msgs[i] = kafka.Message{
			Topic: r.Topic(e.AggregateType),
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"event_type": string(e.EventType),
				"event_id":   e.ID.String(),
			},
		}
		ids[i] = e.ID
	}

	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		_, change := r.breaker.RecordFailure()
		r.observeBreaker(ctx, change)
		if r.metrics != nil {
			r.metrics.IncFailures()
		}
		return 0, err
	}
	_, change := r.breaker.RecordSuccess()
	r.observeBreaker(ctx, change)

	if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.AddPublished(len(ids))
	}
	return len(ids), nil
}

func (r *Relay) observeBreaker(ctx context.Context, change circuit.StateChange) {
	if change.Opened {
		r.logger.ErrorContext(ctx, "outbox relay circuit opened; broker unavailable")
	}
	if change.Closed {
		r.logger.InfoContext(ctx, "outbox relay circuit closed; broker recovered")
	}
	if r.metrics != nil {
		r.metrics.SetCircuitOpen(r.breaker.IsOpen())
	}
}
