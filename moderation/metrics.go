package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts upstream attempts and verdict outcomes.
type Metrics struct {
	attempts *prometheus.CounterVec
	verdicts *prometheus.CounterVec
}

// NewMetrics registers the moderation counters with reg. A nil reg keeps
// the counters unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civicsync",
			Subsystem: "moderation",
			Name:      "upstream_attempts_total",
			Help:      "Calls made to the classification model, by outcome.",
		}, []string{"outcome"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civicsync",
			Subsystem: "moderation",
			Name:      "verdicts_total",
			Help:      "Verdicts returned by the moderation gate.",
		}, []string{"result"}),
	}
}

func (m *Metrics) attempt(err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case IsCapacityError(err):
		outcome = "capacity"
	default:
		outcome = "error"
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) verdict(v Verdict) {
	result := "invalid"
	switch {
	case v.Fallback:
		result = "fallback"
	case v.IsValid:
		result = "valid"
	}
	m.verdicts.WithLabelValues(result).Inc()
}
