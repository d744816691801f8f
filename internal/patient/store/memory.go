package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
)

// InMemory keeps patients in a map guarded by one mutex.
type InMemory struct {
	mu       sync.RWMutex
	patients map[domain.CitizenID]*models.Patient
}

func NewInMemory() *InMemory {
	return &InMemory{patients: make(map[domain.CitizenID]*models.Patient)}
}

func (s *InMemory) Create(ctx context.Context, p *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.CitizenID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *p
	s.patients[p.CitizenID] = &cp

	id := p.CitizenID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.patients, id)
	})
	return nil
}

// restoreOnRollback puts prev back if the surrounding transaction fails.
// Callers hold s.mu.
func (s *InMemory) restoreOnRollback(ctx context.Context, prev models.Patient) {
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.patients[prev.CitizenID]; ok {
			p := prev
			s.patients[prev.CitizenID] = &p
		}
	})
}

func (s *InMemory) FindByCitizen(_ context.Context, citizenID domain.CitizenID) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[citizenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// FindByCitizens returns the patients that exist among ids, ordered by citizen id.
func (s *InMemory) FindByCitizens(_ context.Context, ids []domain.CitizenID) ([]*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Patient, 0, len(ids))
	seen := make(map[domain.CitizenID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.patients[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitizenID < out[j].CitizenID })
	return out, nil
}

// Execute runs apply against the current record while holding the write lock
// and stores its result. A nil result leaves the record unchanged.
func (s *InMemory) Execute(ctx context.Context, citizenID domain.CitizenID, apply func(*models.Patient) (*models.Patient, error)) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.patients[citizenID]
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
	s.restoreOnRollback(ctx, *current)
	stored := *next
	s.patients[citizenID] = &stored
	out := stored
	return &out, nil
}

func (s *InMemory) UpdateInsuranceFlag(ctx context.Context, citizenID domain.CitizenID, isInsurance bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[citizenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.restoreOnRollback(ctx, *p)
	p.IsInsurance = isInsurance
	p.UpdatedAt = at
	return nil
}
