package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for crmsync.
// A nil *MetricsRegistry is valid and records nothing.
type MetricsRegistry struct {
	// HTTP Metrics (ops server)
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Remote API Metrics
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec
	RemoteRetriesTotal    *prometheus.CounterVec

	// Cache Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Sync Metrics
	SyncRecordsTotal *prometheus.CounterVec
	SyncRunsTotal    *prometheus.CounterVec
	SyncJobDuration  *prometheus.HistogramVec
	PushesTotal      *prometheus.CounterVec
	LinkOutcomes     *prometheus.CounterVec
}

// NewMetricsRegistry registers every collector on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	f := promauto.With(reg)
	return &MetricsRegistry{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmsync_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crmsync_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		RemoteRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_remote_requests_total",
				Help: "Requests sent to the CRM by operation and status class",
			},
			[]string{"operation", "status_class"},
		),
		RemoteRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmsync_remote_request_duration_seconds",
				Help:    "CRM request latency in seconds, including throttle wait",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		RemoteRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_remote_retries_total",
				Help: "Retried CRM requests by operation",
			},
			[]string{"operation"},
		),

		CacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_cache_hits_total",
				Help: "Total cache hits by cache key pattern",
			},
			[]string{"cache_key_pattern"},
		),
		CacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_cache_misses_total",
				Help: "Total cache misses by cache key pattern",
			},
			[]string{"cache_key_pattern"},
		),

		SyncRecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_sync_records_total",
				Help: "Records processed by import kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		SyncRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_sync_runs_total",
				Help: "Finished ledger runs by kind and status",
			},
			[]string{"kind", "status"},
		),
		SyncJobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmsync_sync_job_duration_seconds",
				Help:    "Sync job execution time in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"job_name"},
		),
		PushesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_pushes_total",
				Help: "Pushes to the CRM by entity, operation and outcome",
			},
			[]string{"entity", "operation", "outcome"},
		),
		LinkOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmsync_link_outcomes_total",
				Help: "Link pass results by tier or outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveRemote records one finished CRM call.
func (m *MetricsRegistry) ObserveRemote(operation, statusClass string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.WithLabelValues(operation, statusClass).Inc()
	m.RemoteRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncRemoteRetry counts a retried CRM call.
func (m *MetricsRegistry) IncRemoteRetry(operation string) {
	if m == nil {
		return
	}
	m.RemoteRetriesTotal.WithLabelValues(operation).Inc()
}

// CacheHit counts a hit or miss for a key pattern.
func (m *MetricsRegistry) CacheHit(pattern string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(pattern).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(pattern).Inc()
}

// AddRecords adds n records with the given outcome (created, updated, failed, skipped).
func (m *MetricsRegistry) AddRecords(kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyncRecordsTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// RunFinished counts a finished ledger run.
func (m *MetricsRegistry) RunFinished(kind, status string) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveJob records a job duration.
func (m *MetricsRegistry) ObserveJob(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncJobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// Push counts one push outcome.
func (m *MetricsRegistry) Push(entity, operation, outcome string) {
	if m == nil {
		return
	}
	m.PushesTotal.WithLabelValues(entity, operation, outcome).Inc()
}

// LinkOutcome adds n to a link outcome (exact, case_insensitive, substring, unmatched, unlinkable).
func (m *MetricsRegistry) LinkOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinkOutcomes.WithLabelValues(outcome).Add(float64(n))
}
