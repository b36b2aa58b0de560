// Package metrics defines the Prometheus collectors used across the review
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	RecordsProcessed    prometheus.Counter
	DuplicateRecords    prometheus.Counter
	MalformedRecords    prometheus.Counter
	IngestThrottles     *prometheus.CounterVec
	BufferedTexts       prometheus.Gauge
	FreeMemoryBytes     prometheus.Gauge
	MemoryLow           prometheus.Gauge
	TranslationRequests *prometheus.CounterVec
	TranslationBatch    prometheus.Histogram
	TranslationsDropped prometheus.Counter
	ForwardedTexts      *prometheus.CounterVec
	PoolTasksRunning    prometheus.Gauge
	PoolTaskFailures    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviews_processed_total",
				Help: "Unique review records counted into the frequency tables.",
			},
		),
		DuplicateRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviews_duplicate_total",
				Help: "Review records skipped because their content hash was already seen.",
			},
		),
		MalformedRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviews_malformed_total",
				Help: "Rows the record source could not parse.",
			},
		),
		IngestThrottles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_throttles_total",
				Help: "Ingestion pauses by reason (memory, batch).",
			},
			[]string{"reason"},
		),
		BufferedTexts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "translation_buffer_size",
				Help: "Texts waiting in the translation buffer.",
			},
		),
		FreeMemoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_available_memory_bytes",
				Help: "Last sampled available host memory.",
			},
		),
		MemoryLow: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_memory_low",
				Help: "1 while available memory is below the configured threshold.",
			},
		),
		TranslationRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_requests_total",
				Help: "Translation requests by outcome (success, status, transport, cancelled, circuit_open).",
			},
			[]string{"outcome"},
		),
		TranslationBatch: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "translation_batch_duration_seconds",
				Help:    "Time from first request issued to barrier release.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		TranslationsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "translations_dropped_total",
				Help: "Texts dropped after exhausting their retry attempts.",
			},
		),
		ForwardedTexts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwarded_texts_total",
				Help: "Texts forwarded to peer machines by peer and status.",
			},
			[]string{"peer", "status"},
		),
		PoolTasksRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_pool_tasks_running",
				Help: "Tasks currently executing on pool workers.",
			},
		),
		PoolTaskFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "worker_pool_task_failures_total",
				Help: "Tasks that returned an error or panicked.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.RecordsProcessed,
		m.DuplicateRecords,
		m.MalformedRecords,
		m.IngestThrottles,
		m.BufferedTexts,
		m.FreeMemoryBytes,
		m.MemoryLow,
		m.TranslationRequests,
		m.TranslationBatch,
		m.TranslationsDropped,
		m.ForwardedTexts,
		m.PoolTasksRunning,
		m.PoolTaskFailures,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered returns collectors registered with a throwaway registry.
// Tests use it to avoid duplicate registration panics.
func NewUnregistered() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
