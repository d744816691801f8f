package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/insurance/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[domain.CitizenID]models.Insurance
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[domain.CitizenID]models.Insurance)}
}

func (c *mapCache) Get(_ context.Context, id domain.CitizenID) (*models.Insurance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	ins, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	return &ins, true, nil
}

func (c *mapCache) Set(_ context.Context, ins *models.Insurance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ins.CitizenID] = *ins
	return nil
}

func (c *mapCache) Delete(_ context.Context, id domain.CitizenID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *mapCache) has(id domain.CitizenID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

type countingBackend struct {
	*InMemory
	reads    atomic.Int32
	txReads  atomic.Int32
	canceled atomic.Int32
	gate     chan struct{}
}

func (b *countingBackend) FindByCitizen(ctx context.Context, id domain.CitizenID) (*models.Insurance, error) {
	b.reads.Add(1)
	if _, ok := tx.From(ctx); ok {
		b.txReads.Add(1)
	}
	if b.gate != nil {
		<-b.gate
	}
	if ctx.Err() != nil {
		b.canceled.Add(1)
	}
	return b.InMemory.FindByCitizen(ctx, id)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	card := newCard("000000000001", "1000000001", asOf.AddDays(-10), asOf.AddDays(10))

	setup := func(t *testing.T) (*CachedStore, *countingBackend, *mapCache) {
		backend := &countingBackend{InMemory: NewInMemory()}
		require.NoError(t, backend.InMemory.Create(ctx, card))
		cache := newMapCache()
		return NewCached(backend, cache), backend, cache
	}

	t.Run("second read is served from cache", func(t *testing.T) {
		s, backend, cache := setup(t)
		_, err := s.FindByCitizen(ctx, card.CitizenID)
		require.NoError(t, err)
		got, err := s.FindByCitizen(ctx, card.CitizenID)
		require.NoError(t, err)
		assert.Equal(t, card.InsuranceID, got.InsuranceID)
		assert.Equal(t, int32(1), backend.reads.Load())
		assert.True(t, cache.has(card.CitizenID))
	})

	t.Run("misses are not cached", func(t *testing.T) {
		s, backend, cache := setup(t)
		_, err := s.FindByCitizen(ctx, "000000000009")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = s.FindByCitizen(ctx, "000000000009")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.Equal(t, int32(2), backend.reads.Load())
		assert.False(t, cache.has("000000000009"))
	})

	t.Run("delete invalidates", func(t *testing.T) {
		s, _, cache := setup(t)
		_, err := s.FindByCitizen(ctx, card.CitizenID)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, card.CitizenID))
		assert.False(t, cache.has(card.CitizenID))
		_, err = s.FindByCitizen(ctx, card.CitizenID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("cache failure falls through to backend", func(t *testing.T) {
		s, backend, cache := setup(t)
		cache.failGet = true
		got, err := s.FindByCitizen(ctx, card.CitizenID)
		require.NoError(t, err)
		assert.Equal(t, card.CitizenID, got.CitizenID)
		assert.Equal(t, int32(1), backend.reads.Load())
	})

	t.Run("callers get independent copies", func(t *testing.T) {
		s, _, _ := setup(t)
		a, err := s.FindByCitizen(ctx, card.CitizenID)
		require.NoError(t, err)
		a.FullName = "mutated"
		b, err := s.FindByCitizen(ctx, card.CitizenID)
		require.NoError(t, err)
		assert.Equal(t, "Le Van C", b.FullName)
	})

	t.Run("reads inside a transaction bypass the cache", func(t *testing.T) {
		s, backend, cache := setup(t)
		txCtx := tx.WithTx(ctx, &sql.Tx{})
		got, err := s.FindByCitizen(txCtx, card.CitizenID)
		require.NoError(t, err)
		assert.Equal(t, card.InsuranceID, got.InsuranceID)
		assert.Equal(t, int32(1), backend.txReads.Load())
		assert.False(t, cache.has(card.CitizenID), "uncommitted reads are not cached")
	})

	t.Run("shared read is detached from the first caller", func(t *testing.T) {
		s, backend, _ := setup(t)
		backend.gate = make(chan struct{})

		first, cancelFirst := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := s.FindByCitizen(first, card.CitizenID)
			firstErr <- err
		}()
		require.Eventually(t, func() bool { return backend.reads.Load() == 1 }, time.Second, time.Millisecond)

		second := make(chan *models.Insurance, 1)
		go func() {
			got, err := s.FindByCitizen(ctx, card.CitizenID)
			assert.NoError(t, err)
			second <- got
		}()

		cancelFirst()
		assert.ErrorIs(t, <-firstErr, context.Canceled)
		close(backend.gate)

		got := <-second
		require.NotNil(t, got)
		assert.Equal(t, card.InsuranceID, got.InsuranceID)
		assert.Equal(t, int32(0), backend.canceled.Load())
		assert.Equal(t, int32(0), backend.txReads.Load())
	})
}
