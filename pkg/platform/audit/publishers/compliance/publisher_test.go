package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/audit/store/memory"
	"kiosk/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func TestPublisher_Emit(t *testing.T) {
	now := time.Date(2025, 5, 4, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	ctx = requestcontext.WithOperator(ctx, "desk-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7", "", "kiosk:lobby-2")

	t.Run("fills request metadata", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		p := New(store)

		err := p.Emit(ctx, audit.Event{
			Action:        audit.EventOrderCreated,
			AggregateType: audit.AggregateOrder,
			AggregateID:   "7",
		})
		require.NoError(t, err)

		events := store.EventsFor(audit.AggregateOrder, "7")
		require.Len(t, events, 1)
		assert.Equal(t, now, events[0].Timestamp)
		assert.Equal(t, "req-42", events[0].RequestID)
		assert.Equal(t, "desk-1", events[0].ActorID)
		assert.Equal(t, "kiosk:lobby-2", events[0].Device)
	})

	t.Run("rejects incomplete events", func(t *testing.T) {
		p := New(memory.NewInMemoryStore())
		assert.Error(t, p.Emit(ctx, audit.Event{AggregateID: "1"}))
		assert.Error(t, p.Emit(ctx, audit.Event{Action: audit.EventOrderCreated}))
	})

	t.Run("store failure fails the caller", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		p := New(failingStore{}, WithMetrics(m))

		err := p.Emit(ctx, audit.Event{
			Action:        audit.EventInsuranceCreated,
			AggregateType: audit.AggregateInsurance,
			AggregateID:   "001122334455",
		})
		require.Error(t, err)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistFailures))
	})
}
