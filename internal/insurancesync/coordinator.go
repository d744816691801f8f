// Package insurancesync keeps Patient.is_insurance aligned with the insurance
// registry. Synchronization is an explicit command: nothing here runs on a
// timer or when a card expires, so a lapsed card leaves the flag untouched
// until the next Sync.
package insurancesync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	insuranceModels "kiosk/internal/insurance/models"
	patientModels "kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/audit"
	"kiosk/pkg/platform/sentinel"
	"kiosk/pkg/platform/tx"
	"kiosk/pkg/requestcontext"
)

type PatientStore interface {
	FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*patientModels.Patient, error)
	FindByCitizens(ctx context.Context, ids []domain.CitizenID) ([]*patientModels.Patient, error)
	UpdateInsuranceFlag(ctx context.Context, citizenID domain.CitizenID, isInsurance bool, at time.Time) error
}

// Registry reports not_found domain errors for citizens without a card.
type Registry interface {
	GetByCitizen(ctx context.Context, citizenID domain.CitizenID) (*insuranceModels.Insurance, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// MaxBatch bounds SyncBatch.
const MaxBatch = 500

// Metrics counts sync outcomes.
type Metrics struct {
	Syncs *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Syncs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_patient_insurance_syncs_total",
			Help: "Patient insurance syncs by outcome (changed, unchanged)",
		}, []string{"outcome"}),
	}
}

type Coordinator struct {
	patients PatientStore
	registry Registry
	policy   Policy
	tx       tx.Runner
	loc      *time.Location
	logger   *slog.Logger
	metrics  *Metrics
	auditor  AuditPublisher
}

type Option func(*Coordinator)

func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

func WithTx(runner tx.Runner) Option {
	return func(c *Coordinator) {
		c.tx = runner
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(c *Coordinator) {
		c.auditor = p
	}
}

func New(patients PatientStore, registry Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		patients: patients,
		registry: registry,
		policy:   PolicyExistence,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tx == nil {
		c.tx = tx.NewMemoryRunner(tx.DefaultTimeout)
	}
	return c
}

func (c *Coordinator) Policy() Policy { return c.policy }

// Sync re-reads the patient and the registry and writes is_insurance only
// when the policy's answer differs from the stored flag.
func (c *Coordinator) Sync(ctx context.Context, citizenID domain.CitizenID) (*patientModels.Patient, error) {
	if citizenID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "citizen_id is required")
	}
	var out *patientModels.Patient
	err := c.tx.RunInTx(ctx, func(txCtx context.Context) error {
		patient, err := c.patients.FindByCitizen(txCtx, citizenID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "patient not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
		}
		out, err = c.apply(txCtx, patient)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Report summarizes a batch sync.
type Report struct {
	Checked int                `json:"checked"`
	Changed []domain.CitizenID `json:"changed"`
	Missing []domain.CitizenID `json:"missing"`
}

// SyncBatch syncs every listed citizen in one transaction. Citizens without a
// patient record are reported as missing rather than failing the batch.
func (c *Coordinator) SyncBatch(ctx context.Context, ids []domain.CitizenID) (*Report, error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "citizen_ids is required")
	}
	if len(ids) > MaxBatch {
		return nil, dErrors.New(dErrors.CodeValidation, "too many citizen_ids in one batch")
	}
	report := &Report{Changed: []domain.CitizenID{}, Missing: []domain.CitizenID{}}
	err := c.tx.RunInTx(ctx, func(txCtx context.Context) error {
		patients, err := c.patients.FindByCitizens(txCtx, ids)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patients")
		}
		found := make(map[domain.CitizenID]struct{}, len(patients))
		for _, p := range patients {
			found[p.CitizenID] = struct{}{}
			before := p.IsInsurance
			after, err := c.apply(txCtx, p)
			if err != nil {
				return err
			}
			report.Checked++
			if after.IsInsurance != before {
				report.Changed = append(report.Changed, p.CitizenID)
			}
		}
		seen := make(map[domain.CitizenID]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := found[id]; ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			report.Missing = append(report.Missing, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Coordinator) apply(ctx context.Context, patient *patientModels.Patient) (*patientModels.Patient, error) {
	card, err := c.registry.GetByCitizen(ctx, patient.CitizenID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
		card = nil
	}
	asOf := domain.DayOf(requestcontext.Now(ctx), c.loc)
	eligible := c.policy.Eligible(card, asOf)
	if eligible == patient.IsInsurance {
		c.count("unchanged")
		return patient, nil
	}

	now := requestcontext.Now(ctx)
	if err := c.patients.UpdateInsuranceFlag(ctx, patient.CitizenID, eligible, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update insurance flag")
	}
	if c.auditor != nil {
		err := c.auditor.Emit(ctx, audit.Event{
			Action:        audit.EventPatientInsuranceSynced,
			AggregateType: audit.AggregatePatient,
			AggregateID:   patient.CitizenID.String(),
			Data: map[string]any{
				"is_insurance": eligible,
				"previous":     patient.IsInsurance,
				"policy":       string(c.policy),
			},
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record sync event")
		}
	}
	if c.logger != nil {
		c.logger.InfoContext(ctx, string(audit.EventPatientInsuranceSynced),
			"citizen_id", patient.CitizenID.String(),
			"is_insurance", eligible,
			"policy", string(c.policy),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	c.count("changed")

	updated := *patient
	updated.IsInsurance = eligible
	updated.UpdatedAt = now
	return &updated, nil
}

func (c *Coordinator) count(outcome string) {
	if c.metrics != nil {
		c.metrics.Syncs.WithLabelValues(outcome).Inc()
	}
}
