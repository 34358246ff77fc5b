package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the insights service.
type Metrics struct {
	// Resolution metrics
	Resolutions     *prometheus.CounterVec
	CandidateErrors *prometheus.CounterVec
	Detections      *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec

	// Assembly metrics
	AssembleLatency *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec

	// Data source metrics
	QueryLatency  *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
	DBConnections *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPLatency   *prometheus.HistogramVec
	RateLimitHits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates all metrics on a dedicated registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Resolution metrics
		Resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Metric resolutions by outcome",
			},
			[]string{"metric", "outcome"}, // resolved, empty
		),
		CandidateErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidate_errors_total",
				Help:      "Candidate attempts that failed with a schema mismatch or timeout",
			},
			[]string{"metric", "table"},
		),
		Detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "column_detections_total",
				Help:      "Column auto-detection attempts by result",
			},
			[]string{"table", "result"},
		),
		Fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Placeholder defaults applied per dashboard component",
			},
			[]string{"component"},
		),

		// Assembly metrics
		AssembleLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "assemble_duration_seconds",
				Help:      "Payload assembly latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"payload", "status"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Payload cache lookups",
			},
			[]string{"payload", "result"}, // hit, miss, error
		),

		// Data source metrics
		QueryLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "datasource_query_seconds",
				Help:      "Data source query latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "status"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Data source circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		DBConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),

		// HTTP metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordResolution records the final outcome of one metric resolution.
func (m *Metrics) RecordResolution(metric string, resolved bool) {
	outcome := "empty"
	if resolved {
		outcome = "resolved"
	}
	m.Resolutions.WithLabelValues(metric, outcome).Inc()
}

// RecordCandidateError records a failed candidate attempt.
func (m *Metrics) RecordCandidateError(metric, table string) {
	m.CandidateErrors.WithLabelValues(metric, table).Inc()
}

// RecordDetection records a column auto-detection attempt.
func (m *Metrics) RecordDetection(table string, found bool) {
	m.Detections.WithLabelValues(table, strconv.FormatBool(found)).Inc()
}

// RecordFallback records a placeholder default.
func (m *Metrics) RecordFallback(component string) {
	m.Fallbacks.WithLabelValues(component).Inc()
}

// RecordAssemble records one payload assembly.
func (m *Metrics) RecordAssemble(payload string, err error, latency time.Duration) {
	m.AssembleLatency.WithLabelValues(payload, statusLabel(err)).Observe(latency.Seconds())
}

// RecordCacheLookup records a payload cache lookup.
func (m *Metrics) RecordCacheLookup(payload, result string) {
	m.CacheLookups.WithLabelValues(payload, result).Inc()
}

// RecordQuery records a data source query.
func (m *Metrics) RecordQuery(operation string, err error, latency time.Duration) {
	m.QueryLatency.WithLabelValues(operation, statusLabel(err)).Observe(latency.Seconds())
}

// SetBreakerState publishes the circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, status int, latency time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(latency.Seconds())
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
