// Package metrics exposes Prometheus instruments for the approval lifecycle.
// All methods are nil-safe so tests can pass a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	created     *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	escalations prometheus.Counter
	expirations prometheus.Counter
	latency     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_approval_requests_total",
			Help: "Approval requests created, labeled by their immediate disposition.",
		}, []string{"disposition"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_approval_decisions_total",
			Help: "Human decisions applied to approval requests.",
		}, []string{"decision"}),
		escalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadgate_approval_escalations_total",
			Help: "Requests escalated, manually or by the sweeper.",
		}),
		expirations: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadgate_approval_expirations_total",
			Help: "Requests expired by the SLA sweeper.",
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadgate_approval_resolution_seconds",
			Help:    "Time from request creation to terminal resolution.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

func (m *Metrics) IncCreated(disposition string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(disposition).Inc()
}

func (m *Metrics) IncDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *Metrics) IncExpiration() {
	if m == nil {
		return
	}
	m.expirations.Inc()
}

func (m *Metrics) ObserveResolution(createdAt, resolvedAt time.Time) {
	if m == nil {
		return
	}
	m.latency.Observe(resolvedAt.Sub(createdAt).Seconds())
}
