// Package metrics provides Prometheus metrics for gitmarks.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync operation metrics
	syncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmarks_sync_operations_total",
			Help: "Total sync operations by kind and result status",
		},
		[]string{"op", "status"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitmarks_sync_duration_seconds",
			Help:    "Duration of sync operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	syncConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmarks_sync_conflicts_total",
			Help: "Total conflicting paths reported by merges",
		},
	)

	filesPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmarks_files_pushed_total",
			Help: "Total file changes committed to the remote",
		},
	)

	filesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmarks_files_applied_total",
			Help: "Total file changes applied to the host",
		},
	)

	lastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmarks_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync operation",
		},
	)

	// Remote API metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmarks_remote_requests_total",
			Help: "Total remote object store requests",
		},
		[]string{"operation", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitmarks_remote_request_duration_seconds",
			Help:    "Remote object store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	commitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmarks_commit_retries_total",
			Help: "Total non-fast-forward retries of atomic commits",
		},
	)

	blobCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmarks_blob_cache_hits_total",
			Help: "Blobs served from the snapshot instead of the remote",
		},
	)

	// Daemon metrics
	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmarks_daemon_triggers_total",
			Help: "Auto-sync triggers by reason",
		},
		[]string{"reason"},
	)

	suppressedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmarks_daemon_suppressed_events_total",
			Help: "Host change events ignored during the suppression window",
		},
	)

	// Dashboard metrics
	dashboardClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitmarks_dashboard_clients_active",
			Help: "Number of connected dashboard websocket clients",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSync records a finished sync operation.
func RecordSync(op, status string, duration time.Duration) {
	syncOperationsTotal.WithLabelValues(op, status).Inc()
	syncDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSyncSuccess marks the time of the last successful operation.
func RecordSyncSuccess(at time.Time) {
	lastSuccess.Set(float64(at.Unix()))
}

// RecordConflicts records conflicting paths.
func RecordConflicts(n int) {
	syncConflicts.Add(float64(n))
}

// RecordPushed records file changes committed to the remote.
func RecordPushed(n int) {
	filesPushed.Add(float64(n))
}

// RecordApplied records file changes applied to the host.
func RecordApplied(n int) {
	filesApplied.Add(float64(n))
}

// RecordRemoteRequest records a remote API call. status is the HTTP status,
// or 0 when no response was received.
func RecordRemoteRequest(operation string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCommitRetry records a non-fast-forward retry.
func RecordCommitRetry() {
	commitRetries.Inc()
}

// RecordBlobCacheHits records blobs served from the snapshot.
func RecordBlobCacheHits(n int) {
	blobCacheHits.Add(float64(n))
}

// RecordTrigger records an auto-sync trigger.
func RecordTrigger(reason string) {
	triggersTotal.WithLabelValues(reason).Inc()
}

// RecordSuppressed records a host event dropped by the suppression window.
func RecordSuppressed() {
	suppressedEvents.Inc()
}

// SetDashboardClients sets the number of connected dashboard clients.
func SetDashboardClients(n int) {
	dashboardClients.Set(float64(n))
}
