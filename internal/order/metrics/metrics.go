package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks order creation and lifecycle changes.
type Metrics struct {
	Created         *prometheus.CounterVec
	StatusChanges   *prometheus.CounterVec
	Payments        *prometheus.CounterVec
	CreateDuration  prometheus.Histogram
	CreateRetries   prometheus.Counter
	CreateConflicts prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_orders_created_total",
			Help: "Orders created, by how the price was chosen",
		}, []string{"price_source"}),
		StatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_order_status_changes_total",
			Help: "Order status transitions, by target status",
		}, []string{"status"}),
		Payments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_order_payments_total",
			Help: "Payment status changes, by target payment status",
		}, []string{"payment_status"}),
		CreateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiosk_order_create_duration_seconds",
			Help:    "Time to create an order, including waiting for the queue key",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CreateRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_order_create_retries_total",
			Help: "Order transactions retried after a serialization failure or deadlock",
		}),
		CreateConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_order_create_conflicts_total",
			Help: "Order creations that failed after exhausting retries",
		}),
	}
}

func (m *Metrics) IncrementCreated(source string) {
	m.Created.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementPayment(status string) {
	m.Payments.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCreate(seconds float64) {
	m.CreateDuration.Observe(seconds)
}

func (m *Metrics) IncrementRetry() {
	m.CreateRetries.Inc()
}

func (m *Metrics) IncrementConflict() {
	m.CreateConflicts.Inc()
}
