package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"kiosk/internal/catalog/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, svc *models.Service) error
	FindByID(ctx context.Context, id domain.ServiceID) (*models.Service, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Service, error)
	SetActive(ctx context.Context, id domain.ServiceID, active bool) (*models.Service, error)
}

// Service is the examination catalog. The order ledger reads prices through GetActive.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, name, description string, insurancePrice, servicePrice decimal.Decimal) (*models.Service, error) {
	svc, err := models.NewService(name, description, insurancePrice, servicePrice, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, svc); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "service name already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create service")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "service created",
			"service_id", svc.ID.String(),
			"name", svc.Name,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return svc, nil
}

func (s *Service) Get(ctx context.Context, id domain.ServiceID) (*models.Service, error) {
	svc, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapServiceErr(err)
	}
	return svc, nil
}

// GetActive is Get restricted to orderable services; an inactive service is not found.
func (s *Service) GetActive(ctx context.Context, id domain.ServiceID) (*models.Service, error) {
	svc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, dErrors.New(dErrors.CodeNotFound, "service not found or inactive")
	}
	return svc, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*models.Service, error) {
	items, err := s.store.List(ctx, activeOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list services")
	}
	return items, nil
}

func (s *Service) SetActive(ctx context.Context, id domain.ServiceID, active bool) (*models.Service, error) {
	svc, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return nil, wrapServiceErr(err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "service availability changed",
			"service_id", id.String(),
			"active", active,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return svc, nil
}

func wrapServiceErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "service not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load service")
}
