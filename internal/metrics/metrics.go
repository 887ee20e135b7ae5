// Package metrics holds the Prometheus collectors for the account lifecycle.
// All methods are safe on a nil *Metrics so tests and tools can skip wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	tokensIssued   *prometheus.CounterVec
	tokensConsumed *prometheus.CounterVec
	tokensSwept    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookstore",
			Name:      "tokens_issued_total",
			Help:      "Tokens issued, by purpose.",
		}, []string{"purpose"}),
		tokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookstore",
			Name:      "tokens_consumed_total",
			Help:      "Tokens redeemed successfully, by purpose.",
		}, []string{"purpose"}),
		tokensSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookstore",
			Name:      "tokens_swept_total",
			Help:      "Token rows removed by the cleanup job, by purpose and reason.",
		}, []string{"purpose", "reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookstore",
			Name:      "notifications_total",
			Help:      "Notification send attempts, by kind and result.",
		}, []string{"kind", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookstore",
			Name:      "verification_resend_rate_limited_total",
			Help:      "Verification resend requests rejected by the per-user rate limit.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.tokensIssued, m.tokensConsumed, m.tokensSwept, m.notifications, m.rateLimited)
	}
	return m
}

func (m *Metrics) TokenIssued(purpose string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) TokenConsumed(purpose string) {
	if m == nil {
		return
	}
	m.tokensConsumed.WithLabelValues(purpose).Inc()
}

func (m *Metrics) TokensSwept(purpose string, reason string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensSwept.WithLabelValues(purpose, reason).Add(float64(count))
}

func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
