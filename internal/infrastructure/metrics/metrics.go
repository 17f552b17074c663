// Package metrics exposes Prometheus instrumentation for the course path engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation
	GenerationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_generation_outcomes_total",
			Help: "Course path generation outcomes",
		},
		[]string{"outcome"}, // "ready", "failed", "reused"
	)

	// External capabilities
	CapabilityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillmate_capability_duration_seconds",
			Help:    "Latency of external AI capability calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"capability", "provider", "status"},
	)

	SentimentFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skillmate_sentiment_fallbacks_total",
			Help: "Reviews classified neutral because the classifier failed or timed out",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skillmate_circuit_breaker_open",
			Help: "1 when the named circuit breaker is open",
		},
		[]string{"name"},
	)

	// Aggregate consistency
	AggregateConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_aggregate_conflicts_total",
			Help: "Optimistic version conflicts on aggregate writes",
		},
		[]string{"operation"},
	)

	AggregateDriftDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skillmate_aggregate_drift_detected_total",
			Help: "Impossible aggregate transitions detected on the write path",
		},
	)

	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_reconcile_runs_total",
			Help: "Aggregate reconciliations by result",
		},
		[]string{"result"}, // "clean", "repaired", "error"
	)

	// Cache
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_cache_requests_total",
			Help: "Read-through cache lookups",
		},
		[]string{"cache", "result"}, // result: "hit", "miss", "error"
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillmate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_events_published_total",
			Help: "Domain events published on the in-process bus",
		},
		[]string{"event_type"},
	)

	EventHandlerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_event_handler_runs_total",
			Help: "Event handler executions",
		},
		[]string{"event_type", "status"}, // status: "ok", "error", "panic"
	)

	// Scheduler
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillmate_job_runs_total",
			Help: "Background job executions",
		},
		[]string{"job", "status"},
	)
)

// RecordCapability observes an external call.
func RecordCapability(capability, provider string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CapabilityDuration.WithLabelValues(capability, provider, status).Observe(time.Since(start).Seconds())
}

// RecordBreakerState tracks a breaker transition.
func RecordBreakerState(name, to string) {
	v := 0.0
	if to == "open" {
		v = 1
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordHTTP observes a finished HTTP request.
func RecordHTTP(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// RecordCache counts a cache lookup.
func RecordCache(cache string, hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	CacheRequests.WithLabelValues(cache, result).Inc()
}
