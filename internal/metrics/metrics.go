// Package metrics exposes Prometheus collectors for the auth core.  A nil
// *Metrics is valid and records nothing, which keeps tests free of registry
// plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	rejections    *prometheus.CounterVec
	loginAttempts *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	storeErrors   prometheus.Counter
	eventsDropped prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_auth",
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by the access gate, by rejection code.",
		}, []string{"code"}),
		loginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome (success, failure, throttled).",
		}, []string{"outcome"}),
		tokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_auth",
			Name:      "token_pairs_issued_total",
			Help:      "Token pairs issued, by reason (login, register, refresh).",
		}, []string{"reason"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_auth",
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions (created, revoked, revoked_all).",
		}, []string{"transition"}),
		storeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campus_auth",
			Name:      "store_unavailable_total",
			Help:      "Requests failed closed because the session store was unreachable.",
		}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campus_auth",
			Name:      "auth_events_dropped_total",
			Help:      "Auth events dropped because the publish queue was full.",
		}),
	}
}

func (m *Metrics) Rejected(code string) {
	if m != nil {
		m.rejections.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m != nil {
		m.loginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) TokensIssued(reason string) {
	if m != nil {
		m.tokensIssued.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Session(transition string) {
	if m != nil {
		m.sessions.WithLabelValues(transition).Inc()
	}
}

func (m *Metrics) StoreUnavailable() {
	if m != nil {
		m.storeErrors.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}
