package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	BackoffSeconds  prometheus.Histogram
	RetriesTotal    prometheus.Counter
	OutcomesTotal   *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_attempts_total",
			Help: "Product page fetch attempts by response classification.",
		},
		[]string{"classification"},
	)
	attemptDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_attempt_duration_seconds",
			Help:    "Latency of a single product page fetch.",
			Buckets: prometheus.DefBuckets,
		},
	)
	backoff := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_wait_seconds",
			Help:    "Pacing plus backoff wait before each attempt.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts issued.",
		},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_outcomes_total",
			Help: "Terminal pipeline outcomes by kind.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cache_hits_total",
			Help: "Lookups answered from the record cache.",
		},
	)

	registry.MustRegister(attempts, attemptDuration, backoff, retries, outcomes, errorsTotal, cacheHits)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		AttemptDuration: attemptDuration,
		BackoffSeconds:  backoff,
		RetriesTotal:    retries,
		OutcomesTotal:   outcomes,
		ErrorsTotal:     errorsTotal,
		CacheHitsTotal:  cacheHits,
	}
}

// IncAttempt counts one classified attempt.
func (m *Metrics) IncAttempt(class models.Classification) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(class.String()).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptDuration.Observe(d.Seconds())
}

// ObserveWait records the wait before an attempt.
func (m *Metrics) ObserveWait(d time.Duration) {
	if m == nil {
		return
	}
	m.BackoffSeconds.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncOutcome counts a terminal outcome.
func (m *Metrics) IncOutcome(kind models.OutcomeKind) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(kind.String()).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit counts a cached lookup.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}
