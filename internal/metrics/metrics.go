// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all jobcrawl metrics.
	MetricsNamespace = "jobcrawl"

	subsystemScheduler = "scheduler"
	subsystemPipeline  = "pipeline"
	subsystemFetch     = "fetch"
	subsystemAI        = "ai"
	subsystemGeocode   = "geocode"
	subsystemSink      = "sink"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Scheduler metrics
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	RunsInFlight       prometheus.Gauge
	SourcesDue         prometheus.Gauge
	SourcesAutoPaused  prometheus.Counter
	LeaseConflicts     prometheus.Counter

	// Pipeline metrics
	JobsExtractedTotal      *prometheus.CounterVec
	JobsUpsertedTotal       *prometheus.CounterVec
	ValidationFailuresTotal *prometheus.CounterVec

	// Fetch metrics
	FetchesTotal         *prometheus.CounterVec
	FetchDurationSeconds *prometheus.HistogramVec
	NotModifiedTotal     prometheus.Counter

	// AI metrics
	AICallsTotal      *prometheus.CounterVec
	AIBudgetRemaining prometheus.Gauge
	AICacheHitsTotal  prometheus.Counter

	// Geocode metrics
	GeocodeTotal *prometheus.CounterVec

	// Sink metrics
	SinkQueueDepth     prometheus.Gauge
	SinkDeliveredTotal *prometheus.CounterVec
	SinkRetriesTotal   prometheus.Counter
	SinkDroppedTotal   prometheus.Counter
}

// New creates and registers all pipeline metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initSchedulerMetrics(factory)
	m.initPipelineMetrics(factory)
	m.initFetchMetrics(factory)
	m.initAIMetrics(factory)
	m.initGeocodeMetrics(factory)
	m.initSinkMetrics(factory)

	return m
}

// initSchedulerMetrics initializes run-dispatch metrics.
func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "runs_total",
			Help:      "Total number of source runs by final status",
		},
		[]string{"status", "source_id"},
	)

	m.RunDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "run_duration_seconds",
			Help:      "Duration of source runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15), // 0.1s to ~55min
		},
		[]string{"source_id"},
	)

	m.RunsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "runs_in_flight",
			Help:      "Number of source runs currently executing",
		},
	)

	m.SourcesDue = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "sources_due",
			Help:      "Number of due sources observed at the last tick",
		},
	)

	m.SourcesAutoPaused = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "sources_auto_paused_total",
			Help:      "Total sources paused by the failure circuit breaker",
		},
	)

	m.LeaseConflicts = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "lease_conflicts_total",
			Help:      "Dispatch attempts skipped because the source was leased",
		},
	)
}

// initPipelineMetrics initializes extraction and upsert metrics.
func (m *Metrics) initPipelineMetrics(factory promauto.Factory) {
	m.JobsExtractedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "jobs_extracted_total",
			Help:      "Total job candidates produced by the extractor cascade",
		},
		[]string{"source_id"},
	)

	m.JobsUpsertedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "jobs_upserted_total",
			Help:      "Upsert outcomes by result",
		},
		[]string{"result"}, // inserted, updated, skipped, failed
	)

	m.ValidationFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "validation_failures_total",
			Help:      "Jobs blocked by the pre-upsert validator by error kind",
		},
		[]string{"kind"},
	)
}

// initFetchMetrics initializes fetch adapter metrics.
func (m *Metrics) initFetchMetrics(factory promauto.Factory) {
	m.FetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemFetch,
			Name:      "fetches_total",
			Help:      "Fetch attempts by adapter and outcome",
		},
		[]string{"adapter", "outcome"},
	)

	m.FetchDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemFetch,
			Name:      "duration_seconds",
			Help:      "Fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	m.NotModifiedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemFetch,
			Name:      "not_modified_total",
			Help:      "Fetches short-circuited by 304 Not Modified",
		},
	)
}

// initAIMetrics initializes AI fallback metrics.
func (m *Metrics) initAIMetrics(factory promauto.Factory) {
	m.AICallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemAI,
			Name:      "calls_total",
			Help:      "AI provider calls by outcome",
		},
		[]string{"outcome"}, // ok, error, budget_exhausted
	)

	m.AIBudgetRemaining = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemAI,
			Name:      "budget_remaining",
			Help:      "AI calls remaining in the current scheduler tick",
		},
	)

	m.AICacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemAI,
			Name:      "cache_hits_total",
			Help:      "AI responses served from the prompt cache",
		},
	)
}

// initGeocodeMetrics initializes geocoding metrics.
func (m *Metrics) initGeocodeMetrics(factory promauto.Factory) {
	m.GeocodeTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemGeocode,
			Name:      "lookups_total",
			Help:      "Geocoder lookups by outcome",
		},
		[]string{"outcome"}, // ok, cache_hit, heuristic, rate_limited, no_result, error
	)
}

// initSinkMetrics initializes search-index sink metrics.
func (m *Metrics) initSinkMetrics(factory promauto.Factory) {
	m.SinkQueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemSink,
			Name:      "queue_depth",
			Help:      "Documents waiting in the sink queue",
		},
	)

	m.SinkDeliveredTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemSink,
			Name:      "delivered_total",
			Help:      "Documents delivered to the search index by operation",
		},
		[]string{"op"}, // index, delete
	)

	m.SinkRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemSink,
			Name:      "retries_total",
			Help:      "Sink delivery retries",
		},
	)

	m.SinkDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemSink,
			Name:      "dropped_total",
			Help:      "Documents dropped after exhausting sink retries",
		},
	)
}
