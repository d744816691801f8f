package store

import (
	"context"
	"sort"
	"sync"

	"kiosk/internal/catalog/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
)

// InMemory is the catalog store used by tests and the storeless server mode.
type InMemory struct {
	mu       sync.RWMutex
	nextID   domain.ServiceID
	services map[domain.ServiceID]*models.Service
}

func NewInMemory() *InMemory {
	return &InMemory{services: make(map[domain.ServiceID]*models.Service)}
}

// Create assigns the next id to svc. Names are unique.
func (s *InMemory) Create(_ context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.services {
		if existing.Name == svc.Name {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.nextID++
	svc.ID = s.nextID
	cp := *svc
	s.services[svc.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ServiceID) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *svc
	return &cp, nil
}

// List returns services ordered by name, optionally only active ones.
func (s *InMemory) List(_ context.Context, activeOnly bool) ([]*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Service, 0, len(s.services))
	for _, svc := range s.services {
		if activeOnly && !svc.Active {
			continue
		}
		cp := *svc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) SetActive(_ context.Context, id domain.ServiceID, active bool) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	svc.Active = active
	cp := *svc
	return &cp, nil
}
