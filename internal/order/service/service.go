package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalogModels "kiosk/internal/catalog/models"
	"kiosk/internal/order/metrics"
	"kiosk/internal/order/models"
	patientModels "kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
	"kiosk/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id domain.OrderID) (*models.Order, error)
	Execute(ctx context.Context, id domain.OrderID, apply func(*models.Order) (*models.Order, error)) (*models.Order, error)
	ListQueue(ctx context.Context, serviceID domain.ServiceID, day domain.Day) ([]*models.Order, error)
}

// Sequencer hands out the next queue number for a key. release must be
// called once the order has been written.
type Sequencer interface {
	Reserve(ctx context.Context, key models.QueueKey) (n int64, release func(), err error)
}

type PatientReader interface {
	Get(ctx context.Context, citizenID domain.CitizenID) (*patientModels.Patient, error)
}

// Catalog resolves orderable services; inactive services are not found.
type Catalog interface {
	GetActive(ctx context.Context, id domain.ServiceID) (*catalogModels.Service, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// MaxAttempts bounds how often an order transaction is retried after a
// serialization failure or deadlock.
const MaxAttempts = 3

// Service is the order ledger.
type Service struct {
	orders    Store
	sequencer Sequencer
	patients  PatientReader
	catalog   Catalog
	tx        tx.Runner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
	tracer    trace.Tracer
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

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithLocation sets the zone whose calendar day a queue number belongs to.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(orders Store, sequencer Sequencer, patients PatientReader, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		orders:    orders,
		sequencer: sequencer,
		patients:  patients,
		catalog:   catalog,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner(tx.DefaultTimeout)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("kiosk/internal/order")
	}
	return s
}

// Today returns the service day of a request made now.
func (s *Service) Today(ctx context.Context) domain.Day {
	return domain.DayOf(requestcontext.Now(ctx), s.loc)
}

// Create books an order. The patient's insurance flag at this moment decides
// the price unless an explicit price is given. The queue number and the
// order row are written together or not at all.
func (s *Service) Create(ctx context.Context, p models.CreateParams) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.String("order.citizen_id", p.CitizenID.String()),
		attribute.Int64("order.service_id", int64(p.ServiceID)),
	))
	defer span.End()

	start := time.Now()
	now := requestcontext.Now(ctx)
	key := models.QueueKey{ServiceID: p.ServiceID, Day: domain.DayOf(now, s.loc)}

	var (
		order  *models.Order
		source models.PriceSource
	)
	err := s.retry(ctx, func() error {
		// The sequencer lock outlives the transaction so a rolled-back
		// attempt is undone before the next caller reads the queue.
		release := func() {}
		defer func() { release() }()
		return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			patient, err := s.patients.Get(txCtx, p.CitizenID)
			if err != nil {
				return err
			}
			svc, err := s.catalog.GetActive(txCtx, p.ServiceID)
			if err != nil {
				return err
			}
			price, src := resolvePrice(p.Price, svc, patient.IsInsurance)

			n, unlock, err := s.sequencer.Reserve(txCtx, key)
			if err != nil {
				return wrapSequenceErr(err)
			}
			release = unlock

			o := &models.Order{
				QueueNumber:   n,
				CitizenID:     patient.CitizenID,
				ServiceID:     svc.ID,
				ServiceDay:    key.Day,
				Status:        models.StatusPending,
				PaymentMethod: p.PaymentMethod,
				PaymentStatus: models.PaymentUnpaid,
				Price:         price,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.orders.Create(txCtx, o); err != nil {
				return wrapCreateErr(err)
			}
			if err := s.emit(txCtx, audit.EventOrderCreated, o, map[string]any{
				"order_number": o.Number(),
				"queue_number": o.QueueNumber,
				"citizen_id":   o.CitizenID.String(),
				"service_id":   int64(o.ServiceID),
				"service_day":  o.ServiceDay.String(),
				"price":        o.Price.StringFixed(2),
				"price_source": string(src),
			}); err != nil {
				return err
			}
			order, source = o, src
			return nil
		})
	})
	if s.metrics != nil {
		s.metrics.ObserveCreate(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", int64(order.ID)),
		attribute.Int64("order.queue_number", order.QueueNumber),
	)
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventOrderCreated),
			"order_number", order.Number(),
			"queue_number", order.QueueNumber,
			"service_id", order.ServiceID.String(),
			"service_day", order.ServiceDay.String(),
			"price", order.Price.StringFixed(2),
			"price_source", string(source),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(source))
	}
	return order, nil
}

func resolvePrice(explicit *decimal.Decimal, svc *catalogModels.Service, isInsurance bool) (decimal.Decimal, models.PriceSource) {
	switch {
	case explicit != nil:
		return explicit.Round(2), models.PriceExplicit
	case isInsurance:
		return svc.PriceFor(true), models.PriceInsured
	default:
		return svc.PriceFor(false), models.PriceNonInsured
	}
}

// retry reruns fn while it fails with a serialization failure, up to MaxAttempts.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, sentinel.ErrSerialization) {
			return err
		}
		if attempt < MaxAttempts {
			if s.metrics != nil {
				s.metrics.IncrementRetry()
			}
			if s.logger != nil {
				s.logger.DebugContext(ctx, "retrying order transaction",
					"attempt", attempt,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementConflict()
	}
	return dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "order could not be created under contention; retry the request")
}

func wrapSequenceErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) || errors.Is(err, sentinel.ErrSerialization) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign queue number")
}

func wrapCreateErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrSerialization):
		return err
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "queue number already taken")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "patient or service not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create order")
	}
}

// UpdateStatus moves an order along the status table. Unknown values are
// validation errors and leave the order untouched; setting the current
// status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id domain.OrderID, status string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", int64(id)),
	))
	defer span.End()

	next, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		updated *models.Order
		from    models.Status
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.orders.Execute(txCtx, id, func(current *models.Order) (*models.Order, error) {
			from = current.Status
			if current.Status == next {
				return nil, nil
			}
			if !current.Status.CanTransitionTo(next) {
				return nil, dErrors.New(dErrors.CodeInvalidState,
					fmt.Sprintf("order status cannot change from %s to %s", current.Status, next))
			}
			current.Status = next
			current.UpdatedAt = now
			changed = true
			return current, nil
		})
		if err != nil {
			return wrapOrderErr(err)
		}
		if !changed {
			return nil
		}
		return s.emit(txCtx, audit.EventOrderStatusChanged, updated, map[string]any{
			"order_number": updated.Number(),
			"from":         string(from),
			"to":           string(next),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if changed {
		if s.logger != nil {
			s.logger.InfoContext(ctx, string(audit.EventOrderStatusChanged),
				"order_number", updated.Number(),
				"from", string(from),
				"to", string(next),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		if s.metrics != nil {
			s.metrics.IncrementStatusChange(string(next))
		}
	}
	return updated, nil
}

// RecordPayment advances the payment status (unpaid, paid, refunded).
// Marking an order paid needs a payment method, either already on the order
// or supplied here. Cancelled orders cannot be paid.
func (s *Service) RecordPayment(ctx context.Context, id domain.OrderID, paymentStatus, paymentMethod string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.RecordPayment", trace.WithAttributes(
		attribute.Int64("order.id", int64(id)),
	))
	defer span.End()

	next, err := models.ParsePaymentStatus(paymentStatus)
	if err != nil {
		return nil, err
	}
	method, err := models.ParsePaymentMethod(paymentMethod)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		updated *models.Order
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.orders.Execute(txCtx, id, func(current *models.Order) (*models.Order, error) {
			if current.PaymentStatus == next {
				return nil, nil
			}
			if !current.PaymentStatus.CanTransitionTo(next) {
				return nil, dErrors.New(dErrors.CodeInvalidState,
					fmt.Sprintf("payment status cannot change from %s to %s", current.PaymentStatus, next))
			}
			if next == models.PaymentPaid {
				if current.Status == models.StatusCancelled {
					return nil, dErrors.New(dErrors.CodeInvalidState, "a cancelled order cannot be paid")
				}
				if method != "" {
					current.PaymentMethod = method
				}
				if current.PaymentMethod == "" {
					return nil, dErrors.New(dErrors.CodeValidation, "payment_method is required to mark an order paid")
				}
			}
			current.PaymentStatus = next
			current.UpdatedAt = now
			changed = true
			return current, nil
		})
		if err != nil {
			return wrapOrderErr(err)
		}
		if !changed {
			return nil
		}
		return s.emit(txCtx, audit.EventOrderPaymentRecorded, updated, map[string]any{
			"order_number":   updated.Number(),
			"payment_status": string(updated.PaymentStatus),
			"payment_method": string(updated.PaymentMethod),
			"price":          updated.Price.StringFixed(2),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if changed {
		if s.logger != nil {
			s.logger.InfoContext(ctx, string(audit.EventOrderPaymentRecorded),
				"order_number", updated.Number(),
				"payment_status", string(updated.PaymentStatus),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		if s.metrics != nil {
			s.metrics.IncrementPayment(string(next))
		}
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id domain.OrderID) (*models.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, wrapOrderErr(err)
	}
	return o, nil
}

// ListQueue returns the day's orders for a service in queue order. A zero
// day means today.
func (s *Service) ListQueue(ctx context.Context, serviceID domain.ServiceID, day domain.Day) ([]*models.Order, error) {
	if day.IsZero() {
		day = s.Today(ctx)
	}
	items, err := s.orders.ListQueue(ctx, serviceID, day)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list queue")
	}
	return items, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, o *models.Order, data map[string]any) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:        action,
		AggregateType: audit.AggregateOrder,
		AggregateID:   o.ID.String(),
		Data:          data,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record order event")
	}
	return nil
}

func wrapOrderErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load order")
	}
}
