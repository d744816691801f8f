package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"kiosk/internal/catalog/models"
	"kiosk/pkg/platform/sentinel"
)

type CatalogStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestCatalogStoreSuite(t *testing.T) {
	suite.Run(t, new(CatalogStoreSuite))
}

func (s *CatalogStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func service(name string) *models.Service {
	return &models.Service{
		Name:           name,
		InsurancePrice: decimal.NewFromInt(30000),
		ServicePrice:   decimal.NewFromInt(100000),
		Active:         true,
		CreatedAt:      time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *CatalogStoreSuite) TestCreateAssignsIDsAndRejectsDuplicateNames() {
	a := service("General exam")
	b := service("X-ray")
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))
	s.EqualValues(1, a.ID)
	s.EqualValues(2, b.ID)

	s.ErrorIs(s.store.Create(s.ctx, service("X-ray")), sentinel.ErrAlreadyUsed)
}

func (s *CatalogStoreSuite) TestListAndSetActive() {
	a := service("X-ray")
	b := service("Blood test")
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))

	updated, err := s.store.SetActive(s.ctx, a.ID, false)
	s.Require().NoError(err)
	s.False(updated.Active)

	all, err := s.store.List(s.ctx, false)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("Blood test", all[0].Name)

	active, err := s.store.List(s.ctx, true)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(b.ID, active[0].ID)

	_, err = s.store.SetActive(s.ctx, 99, true)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CatalogStoreSuite) TestFindByIDReturnsCopy() {
	a := service("Ultrasound")
	s.Require().NoError(s.store.Create(s.ctx, a))

	got, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	got.Name = "changed"

	again, _ := s.store.FindByID(s.ctx, a.ID)
	s.Equal("Ultrasound", again.Name)

	_, err = s.store.FindByID(s.ctx, 42)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
