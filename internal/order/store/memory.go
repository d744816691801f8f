package store

import (
	"context"
	"sort"
	"sync"

	"kiosk/internal/order/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
)

// InMemory keeps orders in a map. Queue numbers are unique per key, mirroring
// the orders_queue_number_key constraint.
type InMemory struct {
	mu     sync.RWMutex
	nextID domain.OrderID
	orders map[domain.OrderID]*models.Order
	queues map[models.QueueKey]map[int64]domain.OrderID
}

func NewInMemory() *InMemory {
	return &InMemory{
		orders: make(map[domain.OrderID]*models.Order),
		queues: make(map[models.QueueKey]map[int64]domain.OrderID),
	}
}

// Create assigns the order id. A failed surrounding transaction removes the
// row again, which frees its queue number.
func (s *InMemory) Create(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.QueueKey{ServiceID: o.ServiceID, Day: o.ServiceDay}
	queue := s.queues[key]
	if _, taken := queue[o.QueueNumber]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if queue == nil {
		queue = make(map[int64]domain.OrderID)
		s.queues[key] = queue
	}
	s.nextID++
	o.ID = s.nextID
	queue[o.QueueNumber] = o.ID
	cp := *o
	s.orders[o.ID] = &cp

	id, n := o.ID, o.QueueNumber
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.orders, id)
		delete(s.queues[key], n)
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.OrderID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *InMemory) MaxQueueNumber(_ context.Context, serviceID domain.ServiceID, day domain.Day) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for n := range s.queues[models.QueueKey{ServiceID: serviceID, Day: day}] {
		if n > max {
			max = n
		}
	}
	return max, nil
}

// ListQueue returns the orders of one service and day by queue number.
func (s *InMemory) ListQueue(_ context.Context, serviceID domain.ServiceID, day domain.Day) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queue := s.queues[models.QueueKey{ServiceID: serviceID, Day: day}]
	out := make([]*models.Order, 0, len(queue))
	for _, id := range queue {
		cp := *s.orders[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out, nil
}

// Execute runs apply on the current order under the write lock and stores the
// result. A nil result leaves the order unchanged. Queue number, price and
// identity are not writable.
func (s *InMemory) Execute(ctx context.Context, id domain.OrderID, apply func(*models.Order) (*models.Order, error)) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orders[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *current
	next, err := apply(&cp)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return &cp, nil
	}
	before := *current
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if o, ok := s.orders[id]; ok {
			*o = before
		}
	})
	current.Status = next.Status
	current.PaymentStatus = next.PaymentStatus
	current.PaymentMethod = next.PaymentMethod
	current.UpdatedAt = next.UpdatedAt
	out := *current
	return &out, nil
}
