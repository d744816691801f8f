package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks patient registrations and updates.
type Metrics struct {
	Registered *prometheus.CounterVec
	Updated    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_patients_registered_total",
			Help: "Patients registered, by source (manual or insurance card)",
		}, []string{"source"}),
		Updated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_patients_updated_total",
			Help: "Patient records changed by partial updates",
		}),
	}
}

func (m *Metrics) IncrementRegistered(source string) {
	m.Registered.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementUpdated() {
	m.Updated.Inc()
}
