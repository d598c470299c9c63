// Package metrics exposes Prometheus collectors for the citation crawler.
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
	targetsTotal               *prometheus.CounterVec
	targetDurationSeconds      prometheus.Histogram
	retriesTotal               prometheus.Counter
	challengesTotal            *prometheus.CounterVec
	sessionRecyclesTotal       prometheus.Counter
	pagesWalkedTotal           prometheus.Counter
	citersTotal                prometheus.Counter
	checkpointsTotal           *prometheus.CounterVec
	enrichmentLookupsTotal     *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citecrawler_targets_total",
				Help: "Targets processed, labeled by outcome (found, no_match, degraded).",
			},
			[]string{"outcome"},
		)

		targetDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "citecrawler_target_duration_seconds",
				Help:    "Wall time spent per target including retries.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		retriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "citecrawler_retries_total",
				Help: "Target attempts beyond the first.",
			},
		)

		challengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citecrawler_challenges_total",
				Help: "Verification challenges seen, labeled by outcome (cleared, timeout).",
			},
			[]string{"outcome"},
		)

		sessionRecyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "citecrawler_session_recycles_total",
				Help: "Browser sessions torn down and recreated.",
			},
		)

		pagesWalkedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "citecrawler_pages_walked_total",
				Help: "Result pages extracted by the pagination walker.",
			},
		)

		citersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "citecrawler_citers_total",
				Help: "Unique citing titles collected.",
			},
		)

		checkpointsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citecrawler_checkpoints_total",
				Help: "Checkpoint writes, labeled by status.",
			},
			[]string{"status"},
		)

		enrichmentLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citecrawler_enrichment_lookups_total",
				Help: "Enrichment lookups, labeled by kind (doi, bibtex) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citecrawler_fetches_total",
				Help: "HTTP fetches issued by the lookup client, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "citecrawler_ratelimit_delay_seconds",
				Help:    "Time spent waiting for a per-host request token.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
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
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// ObserveTarget records a finished target.
func ObserveTarget(outcome string, duration time.Duration) {
	Init()
	targetsTotal.WithLabelValues(outcome).Inc()
	targetDurationSeconds.Observe(duration.Seconds())
}

// ObserveRetry counts one additional attempt at a target.
func ObserveRetry() {
	Init()
	retriesTotal.Inc()
}

// ObserveChallenge records a verification challenge outcome.
func ObserveChallenge(outcome string) {
	Init()
	challengesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRecycle counts one session recycle.
func ObserveRecycle() {
	Init()
	sessionRecyclesTotal.Inc()
}

// ObservePage counts one extracted result page and the citers it added.
func ObservePage(newCiters int) {
	Init()
	pagesWalkedTotal.Inc()
	if newCiters > 0 {
		citersTotal.Add(float64(newCiters))
	}
}

// ObserveCheckpoint records a checkpoint write.
func ObserveCheckpoint(status string) {
	Init()
	checkpointsTotal.WithLabelValues(status).Inc()
}

// ObserveEnrichment records one enrichment lookup.
func ObserveEnrichment(kind, outcome string) {
	Init()
	enrichmentLookupsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveFetch records one outbound HTTP fetch.
func ObserveFetch(site string, status int) {
	Init()
	fetchesTotal.WithLabelValues(SanitizeSite(site), strconv.Itoa(status)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a host's token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
