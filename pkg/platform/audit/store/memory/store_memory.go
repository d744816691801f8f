package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/tx"
)

// InMemoryStore keeps outbox entries in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.OutboxEntry
	events  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.events = nil
}

// Append records the event. It is withdrawn again if the surrounding memory
// transaction fails, so the outbox only holds committed changes.
func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	entry, err := audit.NewEntry(event, time.Now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.events = append(s.events, event)

	tx.OnRollback(ctx, func() { s.withdraw(entry.ID) })
	return nil
}

func (s *InMemoryStore) withdraw(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.events = append(s.events[:i], s.events[i+1:]...)
			return
		}
	}
}

// Events returns every appended event, oldest first.
func (s *InMemoryStore) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

// EventsFor returns the events of one aggregate, oldest first.
func (s *InMemoryStore) EventsFor(aggregate audit.AggregateType, aggregateID string) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.AggregateType == aggregate && e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryStore) FetchUnpublished(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.OutboxEntry
	for _, e := range s.entries {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range s.entries {
		if _, ok := set[s.entries[i].ID]; ok && s.entries[i].PublishedAt == nil {
			published := at
			s.entries[i].PublishedAt = &published
		}
	}
	return nil
}
