package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	insuranceModels "kiosk/internal/insurance/models"
	"kiosk/internal/patient/metrics"
	"kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
	"kiosk/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Patient) error
	FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Patient, error)
	FindByCitizens(ctx context.Context, ids []domain.CitizenID) ([]*models.Patient, error)
	Execute(ctx context.Context, citizenID domain.CitizenID, apply func(*models.Patient) (*models.Patient, error)) (*models.Patient, error)
}

// InsuranceReader is the registry lookup used to register a patient from a card
// and to list insured patients.
type InsuranceReader interface {
	GetByCitizen(ctx context.Context, citizenID domain.CitizenID) (*insuranceModels.Insurance, error)
	List(ctx context.Context, state insuranceModels.ListState, days int) ([]*insuranceModels.Insurance, error)
}

// Syncer recomputes the insurance flag once registration has committed.
type Syncer interface {
	Sync(ctx context.Context, citizenID domain.CitizenID) (*models.Patient, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	sourceManual    = "manual"
	sourceInsurance = "insurance"
)

// Service is the patient directory.
type Service struct {
	store     Store
	insurance InsuranceReader
	syncer    Syncer
	tx        tx.Runner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
	loc       *time.Location
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithSyncer sets the coordinator run after register-from-insurance.
func WithSyncer(syncer Syncer) Option {
	return func(s *Service) {
		s.syncer = syncer
	}
}

func New(store Store, insurance InsuranceReader, opts ...Option) *Service {
	s := &Service{store: store, insurance: insurance, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner(tx.DefaultTimeout)
	}
	return s
}

func (s *Service) today(ctx context.Context) domain.Day {
	return domain.DayOf(requestcontext.Now(ctx), s.loc)
}

// Register creates a patient without insurance.
func (s *Service) Register(ctx context.Context, p models.Params) (*models.Patient, error) {
	patient, err := models.NewPatient(p, s.today(ctx), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, patient, sourceManual); err != nil {
		return nil, err
	}
	return patient, nil
}

// RegisterFromInsurance creates the patient from the identity on their card
// and then runs the explicit sync, so the flag reflects the registry.
func (s *Service) RegisterFromInsurance(ctx context.Context, citizenID domain.CitizenID, extras models.Extras) (*models.Patient, error) {
	card, err := s.insurance.GetByCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	patient, err := models.NewPatient(models.Params{
		CitizenID:  card.CitizenID,
		FullName:   card.FullName,
		DOB:        card.DOB,
		Gender:     card.Gender,
		Phone:      normalizedPhone(card.Phone),
		Address:    extras.Address,
		Occupation: extras.Occupation,
		Ethnicity:  extras.Ethnicity,
	}, s.today(ctx), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, patient, sourceInsurance); err != nil {
		return nil, err
	}
	if s.syncer == nil {
		return patient, nil
	}
	return s.syncer.Sync(ctx, patient.CitizenID)
}

// normalizedPhone drops card phone numbers that do not parse rather than
// failing the registration on data the operator cannot correct here.
func normalizedPhone(raw string) string {
	phone, err := domain.ParsePhone(raw)
	if err != nil {
		return ""
	}
	return phone
}

func (s *Service) create(ctx context.Context, patient *models.Patient, source string) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, patient); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "patient already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register patient")
		}
		return s.emit(txCtx, audit.EventPatientRegistered, patient.CitizenID, map[string]any{"source": source})
	})
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventPatientRegistered),
			"citizen_id", patient.CitizenID.String(),
			"source", source,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementRegistered(source)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, citizenID domain.CitizenID) (*models.Patient, error) {
	p, err := s.store.FindByCitizen(ctx, citizenID)
	if err != nil {
		return nil, wrapPatientErr(err)
	}
	return p, nil
}

// ListWithValidInsurance returns the registered patients whose card is valid
// today, ordered by citizen id. Cards without a patient record are skipped.
func (s *Service) ListWithValidInsurance(ctx context.Context) ([]*models.Patient, error) {
	cards, err := s.insurance.List(ctx, insuranceModels.ListValid, 0)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return []*models.Patient{}, nil
	}
	ids := make([]domain.CitizenID, len(cards))
	for i, card := range cards {
		ids[i] = card.CitizenID
	}
	patients, err := s.store.FindByCitizens(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list insured patients")
	}
	return patients, nil
}

// Update applies an allow-listed partial update. A patch that changes nothing
// returns the current record without writing.
func (s *Service) Update(ctx context.Context, citizenID domain.CitizenID, patch models.Patch) (*models.Patient, error) {
	if patch.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "no updatable fields supplied")
	}
	asOf := s.today(ctx)
	now := requestcontext.Now(ctx)

	var (
		updated *models.Patient
		changed []string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.store.Execute(txCtx, citizenID, func(current *models.Patient) (*models.Patient, error) {
			next, fields, err := current.Apply(patch, asOf, now)
			if err != nil {
				return nil, err
			}
			changed = fields
			if len(fields) == 0 {
				return nil, nil
			}
			return next, nil
		})
		if err != nil {
			return wrapPatientErr(err)
		}
		if len(changed) == 0 {
			return nil
		}
		return s.emit(txCtx, audit.EventPatientUpdated, citizenID, map[string]any{"fields": changed})
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 && s.metrics != nil {
		s.metrics.IncrementUpdated()
	}
	return updated, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, citizenID domain.CitizenID, data map[string]any) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:        action,
		AggregateType: audit.AggregatePatient,
		AggregateID:   citizenID.String(),
		Data:          data,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record patient event")
	}
	return nil
}

func wrapPatientErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "patient not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
}
