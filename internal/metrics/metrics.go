package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	attempts    *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	revocations prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "attempts_total",
			Help:      "Authentication operations by outcome.",
		}, []string{"op", "result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the abuse throttle.",
		}, []string{"endpoint"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "revocations_total",
			Help:      "Tokens added to the revocation registry.",
		}),
	}
	reg.MustRegister(m.attempts, m.rateLimited, m.revocations)
	return m
}

func (m *Metrics) Attempt(op, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) RateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Revoked() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}
