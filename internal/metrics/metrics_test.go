package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Rejected("INVALID_TOKEN")
	m.Rejected("INVALID_TOKEN")
	m.LoginAttempt("failure")
	m.StoreUnavailable()
	m.EventDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejections.WithLabelValues("INVALID_TOKEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Rejected("x")
		m.LoginAttempt("x")
		m.TokensIssued("x")
		m.Session("x")
		m.StoreUnavailable()
		m.EventDropped()
	})
}
