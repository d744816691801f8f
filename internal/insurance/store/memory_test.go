package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kiosk/internal/insurance/models"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
)

type InsuranceStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InsuranceStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInsuranceStoreSuite(t *testing.T) {
	suite.Run(t, new(InsuranceStoreSuite))
}

var asOf = domain.NewDay(2026, time.October, 18)

func newCard(citizen, insurance string, validFrom, expired domain.Day) *models.Insurance {
	return &models.Insurance{
		CitizenID:   domain.CitizenID(citizen),
		InsuranceID: domain.InsuranceID(insurance),
		FullName:    "Le Van C",
		Gender:      domain.GenderMale,
		DOB:         domain.NewDay(1980, time.March, 1),
		ValidFrom:   validFrom,
		Expired:     expired,
		CreatedAt:   time.Now(),
	}
}

func (s *InsuranceStoreSuite) TestCreateAndFind() {
	card := newCard("000000000001", "1000000001", asOf.AddDays(-10), asOf.AddDays(10))
	s.Require().NoError(s.store.Create(s.ctx, card))

	found, err := s.store.FindByCitizen(s.ctx, card.CitizenID)
	s.Require().NoError(err)
	s.Equal(card.InsuranceID, found.InsuranceID)

	_, err = s.store.FindByCitizen(s.ctx, "999999999999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InsuranceStoreSuite) TestUniqueness() {
	card := newCard("000000000001", "1000000001", asOf.AddDays(-10), asOf.AddDays(10))
	s.Require().NoError(s.store.Create(s.ctx, card))

	s.Run("same insurance id", func() {
		err := s.store.Create(s.ctx, newCard("000000000002", "1000000001", asOf, asOf.AddDays(1)))
		s.ErrorIs(err, ErrInsuranceIDTaken)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("same citizen", func() {
		err := s.store.Create(s.ctx, newCard("000000000001", "1000000002", asOf, asOf.AddDays(1)))
		s.ErrorIs(err, ErrCitizenHasInsurance)
	})
}

func (s *InsuranceStoreSuite) TestDeleteFreesBothKeys() {
	card := newCard("000000000001", "1000000001", asOf.AddDays(-10), asOf.AddDays(10))
	s.Require().NoError(s.store.Create(s.ctx, card))
	s.Require().NoError(s.store.Delete(s.ctx, card.CitizenID))

	s.ErrorIs(s.store.Delete(s.ctx, card.CitizenID), sentinel.ErrNotFound)
	s.NoError(s.store.Create(s.ctx, newCard("000000000002", "1000000001", asOf, asOf.AddDays(1))))
}

func (s *InsuranceStoreSuite) TestListViews() {
	valid := newCard("000000000001", "1000000001", asOf.AddDays(-100), asOf.AddDays(200))
	soon := newCard("000000000002", "1000000002", asOf.AddDays(-100), asOf.AddDays(5))
	lastDay := newCard("000000000003", "1000000003", asOf.AddDays(-100), asOf)
	expired := newCard("000000000004", "1000000004", asOf.AddDays(-100), asOf.AddDays(-1))
	future := newCard("000000000005", "1000000005", asOf.AddDays(1), asOf.AddDays(20))
	for _, c := range []*models.Insurance{valid, soon, lastDay, expired, future} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}

	got, err := s.store.ListValid(s.ctx, asOf)
	s.Require().NoError(err)
	s.Equal([]domain.CitizenID{lastDay.CitizenID, soon.CitizenID, valid.CitizenID}, citizens(got))

	got, err = s.store.ListExpired(s.ctx, asOf)
	s.Require().NoError(err)
	s.Equal([]domain.CitizenID{expired.CitizenID}, citizens(got))

	got, err = s.store.ListExpiringSoon(s.ctx, asOf, 30)
	s.Require().NoError(err)
	s.Equal([]domain.CitizenID{lastDay.CitizenID, soon.CitizenID}, citizens(got))
}

func citizens(list []*models.Insurance) []domain.CitizenID {
	out := make([]domain.CitizenID, 0, len(list))
	for _, ins := range list {
		out = append(out, ins.CitizenID)
	}
	return out
}
