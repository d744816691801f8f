package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published   prometheus.Counter
	Failures    prometheus.Counter
	Skipped     prometheus.Counter
	CircuitOpen prometheus.Gauge
}

// NewMetrics registers the relay metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_outbox_published_total",
			Help: "Total number of outbox entries delivered to the broker",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_outbox_publish_failures_total",
			Help: "Total number of failed outbox publish batches",
		}),
		Skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_outbox_circuit_skipped_total",
			Help: "Total number of relay ticks skipped because the circuit was open",
		}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kiosk_outbox_circuit_open",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) AddPublished(n int) { m.Published.Add(float64(n)) }
func (m *Metrics) IncFailures()       { m.Failures.Inc() }
func (m *Metrics) IncSkipped()        { m.Skipped.Inc() }

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
	} else {
		m.CircuitOpen.Set(0)
	}
}
