//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kiosk/internal/patient/models"
	"kiosk/internal/patient/store"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	txcontext "kiosk/pkg/platform/tx"
	"kiosk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tx       *txcontext.PostgresRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = txcontext.NewPostgresRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "orders", "patients"))
}

func patient(id string) *models.Patient {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Patient{
		CitizenID:  domain.CitizenID(id),
		FullName:   "Ngo Thi I",
		DOB:        domain.NewDay(1992, time.February, 29),
		Gender:     domain.GenderFemale,
		Phone:      "0987654321",
		Address:    "Can Tho",
		Occupation: "teacher",
		Ethnicity:  models.DefaultEthnicity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	p := patient("000000000001")
	s.Require().NoError(s.store.Create(ctx, p))
	s.ErrorIs(s.store.Create(ctx, patient("000000000001")), sentinel.ErrAlreadyUsed)

	got, err := s.store.FindByCitizen(ctx, p.CitizenID)
	s.Require().NoError(err)
	s.True(p.DOB.Equal(got.DOB))
	s.Equal(p.Phone, got.Phone)
	s.False(got.IsInsurance)
}

func (s *PostgresStoreSuite) TestFindByCitizensUsesArrayParameter() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, patient("000000000001")))
	s.Require().NoError(s.store.Create(ctx, patient("000000000002")))

	got, err := s.store.FindByCitizens(ctx, []domain.CitizenID{"000000000002", "000000000001", "000000000003"})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(domain.CitizenID("000000000001"), got[0].CitizenID)
}

func (s *PostgresStoreSuite) TestExecuteInsideTransaction() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, patient("000000000001")))

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, "000000000001", func(p *models.Patient) (*models.Patient, error) {
			p.Occupation = "nurse"
			return p, nil
		})
		return err
	})
	s.Require().NoError(err)

	got, err := s.store.FindByCitizen(ctx, "000000000001")
	s.Require().NoError(err)
	s.Equal("nurse", got.Occupation)
}

func (s *PostgresStoreSuite) TestUpdateInsuranceFlagTouchesOnlyFlag() {
	ctx := context.Background()
	p := patient("000000000001")
	s.Require().NoError(s.store.Create(ctx, p))

	s.Require().NoError(s.store.UpdateInsuranceFlag(ctx, p.CitizenID, true, time.Now()))
	got, err := s.store.FindByCitizen(ctx, p.CitizenID)
	s.Require().NoError(err)
	s.True(got.IsInsurance)
	s.Equal(p.Address, got.Address)

	s.ErrorIs(s.store.UpdateInsuranceFlag(ctx, "000000000009", true, time.Now()), sentinel.ErrNotFound)
}
