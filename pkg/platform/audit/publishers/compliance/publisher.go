// Package compliance provides a fail-closed event publisher.
//
// Publisher writes events to the outbox synchronously, inside the caller's
// transaction when one is bound to the context. If the write fails an error is
// returned and the calling operation MUST fail, so a committed business change
// always has its event.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "kiosk/pkg/platform/audit"
	"kiosk/pkg/requestcontext"
)

// Publisher emits events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a publisher. The store must be outbox-backed for guaranteed delivery.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes an event. Missing request metadata (timestamp,
// request id, operator, device) is taken from ctx.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.AggregateID == "" {
		return fmt.Errorf("audit event requires AggregateID")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Operator(ctx)
	}
	if event.Device == "" {
		event.Device = requestcontext.Device(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit event persistence failed",
				"action", event.Action,
				"aggregate_id", event.AggregateID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted(event.Action.Category())
	}
	if p.logger != nil {
		p.logger.InfoContext(ctx, string(event.Action),
			"event", event.Action,
			"log_type", "audit",
			"aggregate_type", event.AggregateType,
			"aggregate_id", event.AggregateID,
			"request_id", event.RequestID,
			"device", event.Device,
		)
	}
	return nil
}
