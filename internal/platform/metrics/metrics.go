// Package metrics registers the Prometheus collectors for the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Slot allocator operations (assign, delete) by outcome: ok or the
	// domain error code.
	SlotOperations *prometheus.CounterVec

	// Attendance transitions by result: marked, noop, unmarked.
	AttendanceMarks *prometheus.CounterVec

	// Cash verification attempts by result: verified, already_verified,
	// concurrent, upstream_error.
	CashVerifications *prometheus.CounterVec

	// Catalog sync runs by result: ok, error, skipped.
	SyncRuns        *prometheus.CounterVec
	SyncEventsTotal prometheus.Counter
	SyncDuration    prometheus.Histogram

	// Audit events dropped because the publisher buffer was full.
	AuditDropped prometheus.Counter

	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SlotOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_slot_operations_total",
			Help: "Slot allocator operations by kind and outcome",
		}, []string{"op", "outcome"}),

		AttendanceMarks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_attendance_marks_total",
			Help: "Attendance transitions by result",
		}, []string{"result"}),

		CashVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_cash_verifications_total",
			Help: "Cash payment verification attempts by result",
		}, []string{"result"}),

		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_sync_runs_total",
			Help: "Event catalog sync runs by result",
		}, []string{"result"}),

		SyncEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passgate_sync_events_upserted_total",
			Help: "Events upserted from the catalog across all sync runs",
		}),

		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "passgate_sync_duration_seconds",
			Help:    "Duration of full catalog sync runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passgate_audit_events_dropped_total",
			Help: "Audit events dropped due to a full publisher buffer",
		}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),
	}
}

// RecordSlotOperation counts a slot allocator outcome.
func (m *Metrics) RecordSlotOperation(op, outcome string) {
	if m != nil {
		m.SlotOperations.WithLabelValues(op, outcome).Inc()
	}
}

// RecordAttendance counts an attendance transition result.
func (m *Metrics) RecordAttendance(result string) {
	if m != nil {
		m.AttendanceMarks.WithLabelValues(result).Inc()
	}
}

// RecordCashVerification counts a verification attempt result.
func (m *Metrics) RecordCashVerification(result string) {
	if m != nil {
		m.CashVerifications.WithLabelValues(result).Inc()
	}
}

// RecordSyncRun counts a sync run and observes its duration.
func (m *Metrics) RecordSyncRun(result string, d time.Duration) {
	if m != nil {
		m.SyncRuns.WithLabelValues(result).Inc()
		m.SyncDuration.Observe(d.Seconds())
	}
}

// AddSyncedEvents counts events upserted by a sync run.
func (m *Metrics) AddSyncedEvents(n int) {
	if m != nil {
		m.SyncEventsTotal.Add(float64(n))
	}
}

// RecordAuditDrop counts a dropped audit event.
func (m *Metrics) RecordAuditDrop() {
	if m != nil {
		m.AuditDropped.Inc()
	}
}

// ObserveRequest records HTTP request latency.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
	}
}
