package sequencer

import (
	"context"
	"sync"

	"kiosk/internal/order/models"
	dErrors "kiosk/pkg/domain-errors"
)

// KeyedLock is a table of mutexes, one per live queue key. Entries are
// reference counted and removed when the last holder or waiter leaves, so
// the table only grows with the number of keys in use at once.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[models.QueueKey]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[models.QueueKey]*lockEntry)}
}

// Lock blocks until key is free or ctx is done. The returned release is idempotent.
func (l *KeyedLock) Lock(ctx context.Context, key models.QueueKey) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "queue number request cancelled")
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, e)
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for queue number")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.leave(key, e)
		})
	}, nil
}

func (l *KeyedLock) leave(key models.QueueKey, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
