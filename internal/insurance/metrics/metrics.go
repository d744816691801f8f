package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the insurance registry.
type Metrics struct {
	CardsCreated   prometheus.Counter
	CardsDeleted   prometheus.Counter
	ValidityChecks *prometheus.CounterVec
	LookupDuration prometheus.Histogram
}

// New registers the insurance metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CardsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_insurance_cards_created_total",
			Help: "Total number of insurance cards registered",
		}),
		CardsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_insurance_cards_deleted_total",
			Help: "Total number of insurance cards removed",
		}),
		ValidityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_insurance_validity_checks_total",
			Help: "Validity checks by resulting status",
		}, []string{"status"}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiosk_insurance_lookup_duration_seconds",
			Help:    "Duration of insurance lookups by citizen id",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.CardsCreated.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.CardsDeleted.Inc()
}

func (m *Metrics) IncrementValidityCheck(status string) {
	m.ValidityChecks.WithLabelValues(status).Inc()
}

// ObserveLookup records the duration of a lookup started at start.
func (m *Metrics) ObserveLookup(start time.Time) {
	m.LookupDuration.Observe(time.Since(start).Seconds())
}
