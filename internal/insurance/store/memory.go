package store

import (
	"context"
	"sort"
	"sync"

	"kiosk/internal/insurance/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
)

// InMemory is a map-backed registry for tests and single-process deployments.
type InMemory struct {
	mu          sync.RWMutex
	byCitizen   map[domain.CitizenID]*models.Insurance
	byInsurance map[domain.InsuranceID]domain.CitizenID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byCitizen:   make(map[domain.CitizenID]*models.Insurance),
		byInsurance: make(map[domain.InsuranceID]domain.CitizenID),
	}
}

func (s *InMemory) Create(ctx context.Context, ins *models.Insurance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byInsurance[ins.InsuranceID]; ok {
		return ErrInsuranceIDTaken
	}
	if _, ok := s.byCitizen[ins.CitizenID]; ok {
		return ErrCitizenHasInsurance
	}
	cp := *ins
	s.byCitizen[ins.CitizenID] = &cp
	s.byInsurance[ins.InsuranceID] = ins.CitizenID

	citizenID, insuranceID := ins.CitizenID, ins.InsuranceID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.byInsurance, insuranceID)
		delete(s.byCitizen, citizenID)
	})
	return nil
}

func (s *InMemory) FindByCitizen(_ context.Context, citizenID domain.CitizenID) (*models.Insurance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ins, ok := s.byCitizen[citizenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *ins
	return &cp, nil
}

func (s *InMemory) Delete(ctx context.Context, citizenID domain.CitizenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins, ok := s.byCitizen[citizenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byInsurance, ins.InsuranceID)
	delete(s.byCitizen, citizenID)

	removed := ins
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byCitizen[removed.CitizenID] = removed
		s.byInsurance[removed.InsuranceID] = removed.CitizenID
	})
	return nil
}

func (s *InMemory) ListValid(_ context.Context, asOf domain.Day) ([]*models.Insurance, error) {
	return s.filter(func(i *models.Insurance) bool { return i.IsValid(asOf) }), nil
}

func (s *InMemory) ListExpired(_ context.Context, asOf domain.Day) ([]*models.Insurance, error) {
	return s.filter(func(i *models.Insurance) bool { return i.Expired.Before(asOf) }), nil
}

func (s *InMemory) ListExpiringSoon(_ context.Context, asOf domain.Day, days int) ([]*models.Insurance, error) {
	limit := asOf.AddDays(days)
	return s.filter(func(i *models.Insurance) bool {
		return i.IsValid(asOf) && !i.Expired.After(limit)
	}), nil
}

// filter returns copies ordered by expiry then citizen id, matching the Postgres ordering.
func (s *InMemory) filter(keep func(*models.Insurance) bool) []*models.Insurance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Insurance, 0)
	for _, ins := range s.byCitizen {
		if keep(ins) {
			cp := *ins
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Expired.Equal(out[j].Expired) {
			return out[i].Expired.Before(out[j].Expired)
		}
		return out[i].CitizenID < out[j].CitizenID
	})
	return out
}
