package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los contadores del motor. Un *Metrics nil no registra nada.
type Metrics struct {
	intentMatches    *prometheus.CounterVec
	authAttempts     *prometheus.CounterVec
	pendingResponses prometheus.Gauge
	abandoned        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		intentMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turbotalk",
			Name:      "intent_matches_total",
			Help:      "Assistant replies by persona and resolved intent.",
		}, []string{"persona", "intent"}),
		authAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turbotalk",
			Name:      "auth_attempts_total",
			Help:      "Sign-in and sign-up attempts by outcome.",
		}, []string{"operation", "result"}),
		pendingResponses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "turbotalk",
			Name:      "pending_responses",
			Help:      "Assistant replies waiting for their delay to elapse.",
		}),
		abandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "turbotalk",
			Name:      "abandoned_responses_total",
			Help:      "Scheduled replies dropped because their conversation went away.",
		}),
	}
}

func (m *Metrics) intentMatched(persona Persona, intent string) {
	if m == nil {
		return
	}
	m.intentMatches.WithLabelValues(string(persona), intent).Inc()
}

func (m *Metrics) authAttempt(operation, result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) responseScheduled() {
	if m == nil {
		return
	}
	m.pendingResponses.Inc()
}

func (m *Metrics) responseFinished(abandoned bool) {
	if m == nil {
		return
	}
	m.pendingResponses.Dec()
	if abandoned {
		m.abandoned.Inc()
	}
}
