package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"kiosk/internal/platform/kafka"
	audit "kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/audit/store/memory"
	"kiosk/pkg/platform/circuit"
)

type fakePublisher struct {
	mu   sync.Mutex
	sent []kafka.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

type RelaySuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.InMemoryStore
	publisher *fakePublisher
	metrics   *Metrics
	now       time.Time
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewInMemoryStore()
	s.publisher = &fakePublisher{}
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func (s *RelaySuite) relay(opts ...Option) *Relay {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.now }),
	}
	return NewRelay(s.store, s.publisher, append(base, opts...)...)
}

func (s *RelaySuite) appendOrderEvent(id string) {
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Action:        audit.EventOrderCreated,
		AggregateType: audit.AggregateOrder,
		AggregateID:   id,
		Timestamp:     s.now,
		Data:          map[string]any{"queue_number": 1},
	}))
}

func (s *RelaySuite) TestPublishesInOrderAndMarksDelivered() {
	s.appendOrderEvent("1")
	s.appendOrderEvent("2")
	r := s.relay()

	n, err := r.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Require().Len(s.publisher.sent, 2)
	s.Equal("kiosk.order-events", s.publisher.sent[0].Topic)
	s.Equal("1", string(s.publisher.sent[0].Key))
	s.Equal("order_created", s.publisher.sent[0].Headers["event_type"])

	var payload audit.Payload
	s.Require().NoError(json.Unmarshal(s.publisher.sent[1].Value, &payload))
	s.Equal("2", payload.AggregateID)
	s.Equal(audit.CategoryOperations, payload.Category)

	pending, err := s.store.FetchUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.Published))
}

func (s *RelaySuite) TestFailureKeepsEntriesPending() {
	s.appendOrderEvent("1")
	s.publisher.err = errors.New("broker down")
	r := s.relay()

	_, err := r.RelayOnce(s.ctx)
	s.Require().Error(err)

	pending, err := s.store.FetchUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Failures))
}

func (s *RelaySuite) TestOpenCircuitSkipsBroker() {
	s.appendOrderEvent("1")
	s.publisher.err = errors.New("broker down")
	clock := s.now
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(1),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return clock }),
	)
	r := s.relay(WithBreaker(breaker))

	_, err := r.RelayOnce(s.ctx)
	s.Require().Error(err)
	s.True(breaker.IsOpen())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CircuitOpen))

	s.publisher.err = nil
	n, err := r.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "no call while cooling down")
	s.Empty(s.publisher.sent)

	clock = clock.Add(time.Minute)
	n, err = r.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n, "probe succeeds and closes the circuit")
	s.False(breaker.IsOpen())
}

func (s *RelaySuite) TestRunStopsOnCancel() {
	s.appendOrderEvent("1")
	ctx, cancel := context.WithCancel(s.ctx)
	r := s.relay(WithInterval(5 * time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	s.Eventually(func() bool {
		s.publisher.mu.Lock()
		defer s.publisher.mu.Unlock()
		return len(s.publisher.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.NoError(<-done)
}
