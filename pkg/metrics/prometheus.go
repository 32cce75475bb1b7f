// Package metrics provides Prometheus metrics for the POA scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the engine records.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Vote pipeline
	votesProcessed    *prometheus.CounterVec
	votesRejected     *prometheus.CounterVec
	votesDuplicate    prometheus.Counter
	versionConflicts  prometheus.Counter
	conflictRetries   prometheus.Counter
	voteLatency       prometheus.Histogram

	// Publish pipeline
	scoresPublished   prometheus.Counter
	publishHeld       *prometheus.CounterVec
	awaitingData      prometheus.Counter
	computeErrors     prometheus.Counter
	replays           prometheus.Counter
	recomputeLatency  prometheus.Histogram

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueDropped     prometheus.Counter
	workerCount      prometheus.Gauge

	// Store gauges
	nftsTracked     prometheus.Gauge
	usersTracked    prometheus.Gauge
	publishedScores prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry so the default Go collectors stay out of the way.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "poa",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.votesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_processed_total",
		Help: "Vote events fully applied, by kind (h2h, slider)",
	}, []string{"kind"})

	m.votesRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_rejected_total",
		Help: "Vote events rejected before any write, by reason",
	}, []string{"reason"})

	m.votesDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_duplicate_total",
		Help: "Vote events skipped as already-seen event ids",
	})

	m.versionConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "version_conflicts_total",
		Help: "Optimistic-concurrency conflicts detected on stats writes",
	})

	m.conflictRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "conflict_retries_total",
		Help: "Read-modify-write attempts retried after a version conflict",
	})

	m.voteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "vote_processing_latency_ms",
		Help:    "End-to-end vote processing latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.scoresPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "scores_published_total",
		Help: "Score records committed to the published score store",
	})

	m.publishHeld = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "publish_held_total",
		Help: "Candidate scores held back by the publish gate, by reason",
	}, []string{"reason"})

	m.awaitingData = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "awaiting_data_total",
		Help: "Recomputations that ended below the minimum-data thresholds",
	})

	m.computeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "computation_errors_total",
		Help: "Score computations aborted on non-finite results",
	})

	m.replays = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "replays_total",
		Help: "NFT aggregates rebuilt from the vote log",
	})

	m.recomputeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "recompute_latency_ms",
		Help:    "Dirty-NFT recompute latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_queue_size",
		Help: "NFT ids currently waiting for recomputation",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_queue_capacity",
		Help: "Configured recompute queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_queue_utilization",
		Help: "Recompute queue fill ratio (0-1)",
	})

	m.queueDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_queue_dropped_total",
		Help: "Recompute jobs rejected because the queue was full or closed",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_workers",
		Help: "Number of recompute workers running",
	})

	m.nftsTracked = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "nfts_tracked",
		Help: "NFT rating records held by the stats store",
	})

	m.usersTracked = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "users_tracked",
		Help: "User rating records held by the stats store",
	})

	m.publishedScores = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "published_scores",
		Help: "NFTs with a publicly visible score",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "system_memory_bytes",
		Help: "Allocated heap bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "system_goroutines",
		Help: "Number of live goroutines",
	})
}

// GetRegistry returns the registry backing the global manager, for promhttp.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level recording helpers against the global manager.

func RecordVoteProcessed(kind string)  { globalManager.votesProcessed.WithLabelValues(kind).Inc() }
func RecordVoteRejected(reason string) { globalManager.votesRejected.WithLabelValues(reason).Inc() }
func RecordVoteDuplicate()             { globalManager.votesDuplicate.Inc() }
func RecordVersionConflict()           { globalManager.versionConflicts.Inc() }
func RecordConflictRetry()             { globalManager.conflictRetries.Inc() }
func RecordVoteLatency(ms float64)     { globalManager.voteLatency.Observe(ms) }

func RecordScorePublished()            { globalManager.scoresPublished.Inc() }
func RecordPublishHeld(reason string)  { globalManager.publishHeld.WithLabelValues(reason).Inc() }
func RecordAwaitingData()              { globalManager.awaitingData.Inc() }
func RecordComputationError()          { globalManager.computeErrors.Inc() }
func RecordReplay()                    { globalManager.replays.Inc() }
func RecordRecomputeLatency(ms float64) { globalManager.recomputeLatency.Observe(ms) }

func UpdateQueueSize(n int)            { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int)        { globalManager.queueCapacity.Set(float64(n)) }
func UpdateQueueUtilization(r float64) { globalManager.queueUtilization.Set(r) }
func RecordQueueDropped()              { globalManager.queueDropped.Inc() }
func UpdateWorkerCount(n int)          { globalManager.workerCount.Set(float64(n)) }

func UpdateNFTsTracked(n int)      { globalManager.nftsTracked.Set(float64(n)) }
func UpdateUsersTracked(n int)     { globalManager.usersTracked.Set(float64(n)) }
func UpdatePublishedScores(n int)  { globalManager.publishedScores.Set(float64(n)) }

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(n int)     { globalManager.systemGoroutineCount.Set(float64(n)) }
