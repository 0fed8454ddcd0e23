// Package metrics defines the Prometheus collectors shared by the api and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. Build it once per process with New.
type Metrics struct {
	SnapshotsSaved   prometheus.Counter
	SaveRejected     *prometheus.CounterVec
	SnapshotsDeleted prometheus.Counter
	SnapshotsEdited  prometheus.Counter
	RetentionRemoved prometheus.Counter
	RetentionFailed  prometheus.Counter
	ActiveLocks      prometheus.Gauge
	LockPollFailures prometheus.Counter
	RowsRecorded     *prometheus.CounterVec
	EventsHandled    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SnapshotsSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "snapshots_saved_total",
			Help:      "Attendance snapshots persisted.",
		}),
		SaveRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "snapshot_save_rejected_total",
			Help:      "Snapshot saves rejected, by reason.",
		}, []string{"reason"}),
		SnapshotsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "snapshots_deleted_total",
			Help:      "Snapshots deleted one at a time.",
		}),
		SnapshotsEdited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "snapshot_rows_edited_total",
			Help:      "Rows edited inside saved snapshots.",
		}),
		RetentionRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "retention_removed_total",
			Help:      "Snapshots removed by clear-older-than.",
		}),
		RetentionFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "retention_failed_total",
			Help:      "Snapshot deletions that failed during clear-older-than.",
		}),
		ActiveLocks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "active_locks",
			Help:      "Group/date pairs currently blocked by the resubmission guard.",
		}),
		LockPollFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "lock_poll_failures_total",
			Help:      "Lock state polls that failed and were skipped.",
		}),
		RowsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "rows_recorded_total",
			Help:      "Attendance rows in saved snapshots, by status.",
		}, []string{"status"}),
		EventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "worker_events_total",
			Help:      "Queue events handled by the worker, by type and result.",
		}, []string{"type", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollcall",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
