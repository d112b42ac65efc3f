// Package metrics exposes Prometheus counters for rule management. All
// methods are nil-safe so tests can pass a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ruleChanges     *prometheus.CounterVec
	recommendations prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ruleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_rule_changes_total",
			Help: "Rule create/update/delete operations.",
		}, []string{"op"}),
		recommendations: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadgate_threshold_recommendations_total",
			Help: "Threshold recommendations produced by the optimizer.",
		}),
	}
}

func (m *Metrics) IncRuleChange(op string) {
	if m == nil {
		return
	}
	m.ruleChanges.WithLabelValues(op).Inc()
}

func (m *Metrics) IncRecommendation() {
	if m == nil {
		return
	}
	m.recommendations.Inc()
}
