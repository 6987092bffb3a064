// Package metrics defines the Prometheus instruments of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	EvidenceIngested        *prometheus.CounterVec
	ClassificationsTotal    *prometheus.CounterVec
	ClassificationFailures  prometheus.Counter
	CorrelatedEventsCreated *prometheus.CounterVec
	IncidentsPromoted       *prometheus.CounterVec
	IncidentTransitions     *prometheus.CounterVec
	AuditAppends            *prometheus.CounterVec
	AuditAppendRetries      prometheus.Counter
	RunDuration             *prometheus.HistogramVec
	HTTPRequests            *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EvidenceIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_evidence_ingested_total",
				Help: "Total number of raw evidence lines stored",
			},
			[]string{"source"},
		),
		ClassificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_classifications_total",
				Help: "Total number of evidence records classified",
			},
			[]string{"attack_type", "severity"},
		),
		ClassificationFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "soc_classification_failures_total",
				Help: "Total number of evidence records that failed classification",
			},
		),
		CorrelatedEventsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_correlated_events_created_total",
				Help: "Total number of correlated events created",
			},
			[]string{"attack_type"},
		),
		IncidentsPromoted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_incidents_promoted_total",
				Help: "Total number of incidents created from correlated events",
			},
			[]string{"attack_type"},
		),
		IncidentTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_incident_transitions_total",
				Help: "Total number of incident status changes",
			},
			[]string{"from", "to"},
		),
		AuditAppends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_audit_appends_total",
				Help: "Total number of audit ledger entries appended",
			},
			[]string{"action"},
		),
		AuditAppendRetries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "soc_audit_append_retries_total",
				Help: "Total number of audit appends retried after a sequence collision",
			},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soc_run_duration_seconds",
				Help:    "Time taken by analysis and correlation runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"run"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soc_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "route", "code"},
		),
	}
}

func (m *Metrics) ObserveIngest(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EvidenceIngested.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ObserveClassification(attackType, severity string) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(attackType, severity).Inc()
}

func (m *Metrics) ObserveClassificationFailure() {
	if m == nil {
		return
	}
	m.ClassificationFailures.Inc()
}

func (m *Metrics) ObserveEventCreated(attackType string) {
	if m == nil {
		return
	}
	m.CorrelatedEventsCreated.WithLabelValues(attackType).Inc()
}

func (m *Metrics) ObservePromotion(attackType string) {
	if m == nil {
		return
	}
	m.IncidentsPromoted.WithLabelValues(attackType).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.IncidentTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveAuditAppend(action string) {
	if m == nil {
		return
	}
	m.AuditAppends.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveAuditRetry() {
	if m == nil {
		return
	}
	m.AuditAppendRetries.Inc()
}

// ObserveRun records how long a named batch run took since start
func (m *Metrics) ObserveRun(run string, start time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(run).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(method, route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
}
