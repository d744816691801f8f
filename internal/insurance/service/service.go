package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kiosk/internal/insurance/metrics"
	"kiosk/internal/insurance/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
	"kiosk/pkg/requestcontext"
)

// Store is the persistence port of the registry.
type Store interface {
	Create(ctx context.Context, ins *models.Insurance) error
	FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, error)
	Delete(ctx context.Context, citizenID domain.CitizenID) error
	ListValid(ctx context.Context, asOf domain.Day) ([]*models.Insurance, error)
	ListExpired(ctx context.Context, asOf domain.Day) ([]*models.Insurance, error)
	ListExpiringSoon(ctx context.Context, asOf domain.Day, days int) ([]*models.Insurance, error)
}

// invalidator is implemented by caching stores.
type invalidator interface {
	Invalidate(ctx context.Context, citizenID domain.CitizenID)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	DefaultExpiringSoonDays = 30
	maxExpiringSoonDays     = 366
)

// Service is the insurance registry. "Today" is the request time observed in
// the configured location.
type Service struct {
	store        Store
	tx           tx.Runner
	logger       *slog.Logger
	metrics      *metrics.Metrics
	auditor      AuditPublisher
	loc          *time.Location
	expiringDays int
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

// WithExpiringSoonDays sets the default window of ListExpiringSoon.
func WithExpiringSoonDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.expiringDays = days
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		loc:          time.UTC,
		expiringDays: DefaultExpiringSoonDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner(tx.DefaultTimeout)
	}
	return s
}

// Today returns the calendar day of the request in the registry's location.
func (s *Service) Today(ctx context.Context) domain.Day {
	return domain.DayOf(requestcontext.Now(ctx), s.loc)
}

// Create registers a new card. Duplicate insurance or citizen ids are conflicts.
func (s *Service) Create(ctx context.Context, p models.Params) (*models.Insurance, error) {
	ins, err := models.NewInsurance(p, s.Today(ctx), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, ins); err != nil {
			return translateCreateErr(err)
		}
		return s.emit(txCtx, audit.EventInsuranceCreated, ins.CitizenID, map[string]any{
			"insurance_id": ins.InsuranceID.String(),
			"valid_from":   ins.ValidFrom.String(),
			"expired":      ins.Expired.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, ins.CitizenID)

	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventInsuranceCreated),
			"citizen_id", ins.CitizenID.String(),
			"insurance_id", ins.InsuranceID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	return ins, nil
}

func translateCreateErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "insurance already registered: "+err.Error())
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create insurance")
	}
}

// GetByCitizen returns the card registered for citizenID.
func (s *Service) GetByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, error) {
	if citizenID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "citizen_id is required")
	}
	start := time.Now()
	ins, err := s.store.FindByCitizen(ctx, citizenID)
	if s.metrics != nil {
		s.metrics.ObserveLookup(start)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "insurance not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load insurance")
	}
	return ins, nil
}

// Exists reports whether citizenID has a registered card, regardless of dates.
func (s *Service) Exists(ctx context.Context, citizenID domain.CitizenID) (bool, error) {
	_, err := s.GetByCitizen(ctx, citizenID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CheckValidity evaluates the citizen's card as of today.
func (s *Service) CheckValidity(ctx context.Context, citizenID domain.CitizenID) (*models.Validity, error) {
	ins, err := s.GetByCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	v := ins.CheckValidity(s.Today(ctx))
	if s.metrics != nil {
		s.metrics.IncrementValidityCheck(string(v.StatusText))
	}
	return &v, nil
}

// Delete removes the citizen's card.
func (s *Service) Delete(ctx context.Context, citizenID domain.CitizenID) error {
	if citizenID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "citizen_id is required")
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Delete(txCtx, citizenID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "insurance not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete insurance")
		}
		return s.emit(txCtx, audit.EventInsuranceDeleted, citizenID, nil)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, citizenID)
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventInsuranceDeleted),
			"citizen_id", citizenID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	return nil
}

// List returns one of the registry views as of today. days only applies to
// ListExpiringSoon; zero selects the configured default.
func (s *Service) List(ctx context.Context, state models.ListState, days int) ([]*models.Insurance, error) {
	asOf := s.Today(ctx)
	var (
		out []*models.Insurance
		err error
	)
	switch state {
	case models.ListValid:
		out, err = s.store.ListValid(ctx, asOf)
	case models.ListExpired:
		out, err = s.store.ListExpired(ctx, asOf)
	case models.ListExpiringSoon:
		if days == 0 {
			days = s.expiringDays
		}
		if days < 0 || days > maxExpiringSoonDays {
			return nil, dErrors.New(dErrors.CodeValidation, "days must be between 1 and 366")
		}
		out, err = s.store.ListExpiringSoon(ctx, asOf, days)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown insurance list state")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list insurance")
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, citizenID domain.CitizenID, data map[string]any) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:        action,
		AggregateType: audit.AggregateInsurance,
		AggregateID:   citizenID.String(),
		Data:          data,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record insurance event")
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, citizenID domain.CitizenID) {
	if inv, ok := s.store.(invalidator); ok {
		inv.Invalidate(ctx, citizenID)
	}
}
