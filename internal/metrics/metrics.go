// Package metrics exposes Prometheus instrumentation for the API: request
// counters and latency histograms, submission outcome counters, and optional
// system level gauges. Everything registers against one private registry so
// tests never trip duplicate-registration panics in the default one.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcome labels for SubmissionsTotal.
const (
	SubmissionAccepted          = "accepted"
	SubmissionReplayed          = "replayed"
	SubmissionRateLimited       = "rate_limited"
	SubmissionInvalidBody       = "invalid_body"
	SubmissionCitationsRequired = "citations_required"
	SubmissionInvalidCitations  = "invalid_citations"
	SubmissionNotFound          = "not_found"
	SubmissionError             = "error"
)

var (
	httpMetricsOnce       sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	httpActiveConnections prometheus.Gauge
	submissionsTotal      *prometheus.CounterVec
)

func initializeHTTPMetrics() {
	httpMetricsOnce.Do(registerHTTPMetrics)
}

func registerHTTPMetrics() {
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casedesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casedesk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	httpActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "casedesk_http_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casedesk_submissions_total",
			Help: "Case output submissions by terminal outcome",
		},
		[]string{"result"},
	)

	mm := GetInstance()
	mm.registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpActiveConnections,
		submissionsTotal,
	)
}

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	initializeHTTPMetrics()

	status := strconv.Itoa(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordSubmission records the terminal outcome of one output submission.
func RecordSubmission(result string) {
	initializeHTTPMetrics()
	submissionsTotal.WithLabelValues(result).Inc()
}

// IncActiveConnections increments the in-flight request gauge.
func IncActiveConnections() {
	initializeHTTPMetrics()
	httpActiveConnections.Inc()
}

// DecActiveConnections decrements the in-flight request gauge.
func DecActiveConnections() {
	initializeHTTPMetrics()
	httpActiveConnections.Dec()
}

// Handler serves the scrape endpoint for everything registered here.
func Handler() http.Handler {
	initializeHTTPMetrics()
	return promhttp.HandlerFor(GetInstance().registry, promhttp.HandlerOpts{})
}
