package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIngest("sshd", 3)
		m.ObserveClassification("brute_force", "high")
		m.ObserveAuditAppend("log_upload")
		m.ObserveRun("analysis", time.Now())
	})
}

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveIngest("sshd", 3)
	m.ObserveIngest("sshd", 0)
	m.ObserveAuditAppend("log_upload")
	m.ObserveAuditAppend("log_upload")
	m.ObserveTransition("open", "closed")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.EvidenceIngested.WithLabelValues("sshd")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditAppends.WithLabelValues("log_upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IncidentTransitions.WithLabelValues("open", "closed")))
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
