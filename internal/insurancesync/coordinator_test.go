package insurancesync

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	insuranceModels "kiosk/internal/insurance/models"
	insuranceService "kiosk/internal/insurance/service"
	insuranceStore "kiosk/internal/insurance/store"
	patientModels "kiosk/internal/patient/models"
	patientStore "kiosk/internal/patient/store"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/audit/publishers/compliance"
	auditmemory "kiosk/pkg/platform/audit/store/memory"
	"kiosk/pkg/requestcontext"
)

type CoordinatorSuite struct {
	suite.Suite
	patients  *patientStore.InMemory
	registry  *insuranceService.Service
	events    *auditmemory.InMemoryStore
	metrics   *Metrics
	ctx       context.Context
	citizenID domain.CitizenID
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

var (
	requestTime = time.Date(2026, time.October, 18, 3, 0, 0, 0, time.UTC)
	today       = domain.NewDay(2026, time.October, 18)
)

func (s *CoordinatorSuite) SetupTest() {
	s.patients = patientStore.NewInMemory()
	s.registry = insuranceService.New(insuranceStore.NewInMemory())
	s.events = auditmemory.NewInMemoryStore()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.ctx = requestcontext.WithTime(context.Background(), requestTime)
	s.citizenID = "036095000123"

	s.Require().NoError(s.patients.Create(s.ctx, &patientModels.Patient{
		CitizenID: s.citizenID,
		FullName:  "Trinh Van K",
		DOB:       domain.NewDay(1995, time.June, 1),
		Gender:    domain.GenderMale,
		CreatedAt: requestTime,
		UpdatedAt: requestTime,
	}))
}

func (s *CoordinatorSuite) coordinator(policy Policy) *Coordinator {
	return New(s.patients, s.registry,
		WithPolicy(policy),
		WithMetrics(s.metrics),
		WithAuditPublisher(compliance.New(s.events)),
	)
}

func (s *CoordinatorSuite) registerCard(validFrom, expired domain.Day) {
	_, err := s.registry.Create(s.ctx, insuranceModels.Params{
		CitizenID:   s.citizenID,
		InsuranceID: "7900000001",
		FullName:    "Trinh Van K",
		Gender:      domain.GenderMale,
		DOB:         domain.NewDay(1995, time.June, 1),
		ValidFrom:   validFrom,
		Expired:     expired,
	})
	s.Require().NoError(err)
}

func (s *CoordinatorSuite) flag() bool {
	p, err := s.patients.FindByCitizen(s.ctx, s.citizenID)
	s.Require().NoError(err)
	return p.IsInsurance
}

func (s *CoordinatorSuite) TestSyncAfterFirstInsuranceCreation() {
	s.registerCard(today.AddDays(-10), today.AddDays(100))
	s.False(s.flag(), "creation alone does not touch the patient")

	p, err := s.coordinator(PolicyExistence).Sync(s.ctx, s.citizenID)
	s.Require().NoError(err)
	s.True(p.IsInsurance)
	s.True(s.flag())
	s.Equal(requestTime, p.UpdatedAt)

	events := s.events.EventsFor(audit.AggregatePatient, s.citizenID.String())
	s.Require().Len(events, 1)
	s.Equal(audit.EventPatientInsuranceSynced, events[0].Action)
}

func (s *CoordinatorSuite) TestSyncIsNoOpWhenUnchanged() {
	c := s.coordinator(PolicyExistence)
	p, err := c.Sync(s.ctx, s.citizenID)
	s.Require().NoError(err)
	s.False(p.IsInsurance)
	s.Empty(s.events.Events(), "no write, no event")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Syncs.WithLabelValues("unchanged")))
}

// TestExpiryDoesNotChangeFlagWithoutSync documents the staleness window.
func (s *CoordinatorSuite) TestExpiryDoesNotChangeFlagWithoutSync() {
	s.registerCard(today.AddDays(-100), today.AddDays(2))
	_, err := s.coordinator(PolicyValidity).Sync(s.ctx, s.citizenID)
	s.Require().NoError(err)
	s.True(s.flag())

	// Time passes beyond expiry; nothing calls Sync.
	card, err := s.registry.GetByCitizen(s.ctx, s.citizenID)
	s.Require().NoError(err)
	s.False(card.IsValid(today.AddDays(5)))
	s.True(s.flag())
}

func (s *CoordinatorSuite) TestPolicyAfterExpiry() {
	s.registerCard(today.AddDays(-100), today.AddDays(2))
	later := requestcontext.WithTime(context.Background(), requestTime.AddDate(0, 0, 5))

	s.Run("existence keeps the flag for an expired card", func() {
		c := s.coordinator(PolicyExistence)
		_, err := c.Sync(s.ctx, s.citizenID)
		s.Require().NoError(err)
		p, err := c.Sync(later, s.citizenID)
		s.Require().NoError(err)
		s.True(p.IsInsurance)
	})

	s.Run("validity clears the flag on the next sync", func() {
		p, err := s.coordinator(PolicyValidity).Sync(later, s.citizenID)
		s.Require().NoError(err)
		s.False(p.IsInsurance)
		s.False(s.flag())
	})
}

func (s *CoordinatorSuite) TestSyncAfterDeletion() {
	s.registerCard(today.AddDays(-1), today.AddDays(1))
	c := s.coordinator(PolicyExistence)
	_, err := c.Sync(s.ctx, s.citizenID)
	s.Require().NoError(err)

	s.Require().NoError(s.registry.Delete(s.ctx, s.citizenID))
	p, err := c.Sync(s.ctx, s.citizenID)
	s.Require().NoError(err)
	s.False(p.IsInsurance)
}

func (s *CoordinatorSuite) TestSyncUnknownPatient() {
	_, err := s.coordinator(PolicyExistence).Sync(s.ctx, "000000000000")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CoordinatorSuite) TestSyncBatch() {
	s.registerCard(today.AddDays(-1), today.AddDays(1))
	other := domain.CitizenID("036095000124")
	s.Require().NoError(s.patients.Create(s.ctx, &patientModels.Patient{
		CitizenID: other,
		FullName:  "Trinh Thi L",
		Gender:    domain.GenderFemale,
	}))

	report, err := s.coordinator(PolicyExistence).SyncBatch(s.ctx, []domain.CitizenID{s.citizenID, other, "000000000000"})
	s.Require().NoError(err)
	s.Equal(2, report.Checked)
	s.Equal([]domain.CitizenID{s.citizenID}, report.Changed)
	s.Equal([]domain.CitizenID{"000000000000"}, report.Missing)

	_, err = s.coordinator(PolicyExistence).SyncBatch(s.ctx, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *CoordinatorSuite) TestParsePolicy() {
	p, err := ParsePolicy("")
	s.Require().NoError(err)
	s.Equal(PolicyExistence, p)
	p, err = ParsePolicy("Validity")
	s.Require().NoError(err)
	s.Equal(PolicyValidity, p)
	_, err = ParsePolicy("vibes")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
