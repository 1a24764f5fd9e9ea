// Package metrics exposes Prometheus collectors for the reconciliation service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	candidatesTotal            *prometheus.CounterVec
	pageFetchesTotal           *prometheus.CounterVec
	pageFetchDurationSeconds   *prometheus.HistogramVec
	matchScore                 prometheus.Histogram
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	activeRuns                 prometheus.Gauge
	linksPublishedTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linker_candidates_total",
				Help: "Candidates processed, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linker_page_fetches_total",
				Help: "Remote listing page fetches, labeled by listing kind and result.",
			},
			[]string{"kind", "result"},
		)

		pageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linker_page_fetch_duration_seconds",
				Help:    "Latency of remote listing page fetches.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		matchScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linker_match_score",
				Help:    "Similarity score of accepted matches.",
				Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linker_runs_total",
				Help: "Reconciliation runs, labeled by strategy and result.",
			},
			[]string{"strategy", "result"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linker_run_duration_seconds",
				Help:    "Wall time per reconciliation run.",
				Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 21600},
			},
			[]string{"strategy"},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linker_active_runs",
				Help: "Number of reconciliation runs in progress.",
			},
		)

		linksPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linker_links_published_total",
				Help: "Link notifications published, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linker_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite reduces a URL to its lowercase hostname for use as a label.
// Scheme-less hosts are accepted. Unparsable input yields "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCandidate counts one candidate outcome.
func ObserveCandidate(strategy, outcome string) {
	Init()
	candidatesTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObservePageFetch records a listing page fetch.
func ObservePageFetch(kind string, ok bool, duration time.Duration) {
	Init()
	if kind == "" {
		kind = "unknown"
	}
	result := "success"
	if !ok {
		result = "error"
	}
	pageFetchesTotal.WithLabelValues(kind, result).Inc()
	pageFetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveMatchScore records the score of an accepted match.
func ObserveMatchScore(score float64) {
	Init()
	matchScore.Observe(score)
}

// RunStarted marks a run as in progress.
func RunStarted() {
	Init()
	activeRuns.Inc()
}

// RunFinished records a completed run.
func RunFinished(strategy string, err error, duration time.Duration) {
	Init()
	activeRuns.Dec()
	result := "success"
	if err != nil {
		result = "error"
	}
	runsTotal.WithLabelValues(strategy, result).Inc()
	runDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObservePublish counts a link notification.
func ObservePublish(err error) {
	Init()
	result := "success"
	if err != nil {
		result = "error"
	}
	linksPublishedTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
