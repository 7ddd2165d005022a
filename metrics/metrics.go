// Package metrics provides Prometheus metrics collection for HTTP server monitoring.
// It exports three metrics for tracking HTTP request performance:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// plus domain counters for record writes, duplicate probes, report and AI usage.
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	HighlightSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highlights_saves_total",
			Help: "Daily record saves by outcome",
		},
		[]string{"outcome"},
	)

	HighlightDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highlights_deletes_total",
			Help: "Daily record deletes by outcome",
		},
		[]string{"outcome"},
	)

	DuplicateProbesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "highlights_duplicate_probes_total",
			Help: "Duplicate lookups performed before a save",
		},
	)

	DuplicateHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "highlights_duplicate_hits_total",
			Help: "Duplicate lookups that found an earlier feature of the drug",
		},
	)

	ReportsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highlights_reports_generated_total",
			Help: "PDF reports generated by outcome",
		},
		[]string{"outcome"},
	)

	ReportPages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "highlights_report_pages",
			Help:    "Page counts of generated PDF reports",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highlights_ai_requests_total",
			Help: "AI generation calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	IndexRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "highlights_index_refreshes_total",
			Help: "Full index re-syncs by outcome",
		},
		[]string{"outcome"},
	)

	IndexDays = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "highlights_index_days",
			Help: "Days currently held in the in-memory index",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(HighlightSavesTotal)
	prometheus.MustRegister(HighlightDeletesTotal)
	prometheus.MustRegister(DuplicateProbesTotal)
	prometheus.MustRegister(DuplicateHitsTotal)
	prometheus.MustRegister(ReportsGeneratedTotal)
	prometheus.MustRegister(ReportPages)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(IndexRefreshesTotal)
	prometheus.MustRegister(IndexDays)
}
