// Package metrics exposes Prometheus collectors for the documentation crawler.
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
	crawlerFetchesTotal            *prometheus.CounterVec
	crawlerFetchDurationSeconds    *prometheus.HistogramVec
	crawlerBytesTotal              *prometheus.CounterVec
	crawlerInFlightFetches         prometheus.Gauge
	crawlerThrottleWaitSeconds     *prometheus.HistogramVec
	crawlerRobotsDecisionsTotal    *prometheus.CounterVec
	crawlerRobotsTLSRetryExhausted prometheus.Counter
	crawlerSitemapDocumentsTotal   *prometheus.CounterVec
	crawlerMenuLinksTotal          prometheus.Counter
	crawlerRunsTotal               *prometheus.CounterVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docscrawler_fetches_total",
				Help: "Total number of page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docscrawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies excluding throttle waits.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docscrawler_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerInFlightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "docscrawler_in_flight_fetches",
				Help: "Number of fetches currently holding a concurrency slot.",
			},
		)

		crawlerThrottleWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docscrawler_throttle_wait_seconds",
				Help:    "Histogram of time spent waiting for a throttle permit.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		crawlerRobotsDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docscrawler_robots_decisions_total",
				Help: "Robots.txt decisions, labeled by decision.",
			},
			[]string{"decision"},
		)

		crawlerRobotsTLSRetryExhausted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "docscrawler_robots_tls_retry_exhausted_total",
				Help: "Robots.txt fetches that kept failing the TLS handshake after retries.",
			},
		)

		crawlerSitemapDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docscrawler_sitemap_documents_total",
				Help: "Sitemap documents processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerMenuLinksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "docscrawler_menu_links_total",
				Help: "Navigation links discovered by menu traversal.",
			},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docscrawler_runs_total",
				Help: "Crawl runs, labeled by mode and status.",
			},
			[]string{"mode", "status"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
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
	Init()
	return promhttp.Handler()
}

// ObserveFetch records the outcome of a single fetch.
func ObserveFetch(site, outcome string, duration time.Duration, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	crawlerFetchesTotal.WithLabelValues(sanitized, outcome).Inc()
	if duration > 0 {
		crawlerFetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
	}
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveThrottleWait records how long a caller waited for a permit.
func ObserveThrottleWait(site string, wait time.Duration) {
	Init()
	crawlerThrottleWaitSeconds.WithLabelValues(SanitizeSite(site)).Observe(wait.Seconds())
}

// IncInFlight increments the in-flight fetch gauge.
func IncInFlight() {
	Init()
	crawlerInFlightFetches.Inc()
}

// DecInFlight decrements the in-flight fetch gauge.
func DecInFlight() {
	Init()
	crawlerInFlightFetches.Dec()
}

// ObserveRobotsDecision counts robots.txt outcomes: allowed, disallowed or fail_open.
func ObserveRobotsDecision(decision string) {
	Init()
	crawlerRobotsDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveRobotsTLSRetryExhausted increments the robots TLS retry counter.
func ObserveRobotsTLSRetryExhausted() {
	Init()
	crawlerRobotsTLSRetryExhausted.Inc()
}

// ObserveSitemapDocument counts a processed sitemap document.
func ObserveSitemapDocument(outcome string) {
	Init()
	crawlerSitemapDocumentsTotal.WithLabelValues(outcome).Inc()
}

// AddMenuLinks adds n discovered navigation links.
func AddMenuLinks(n int) {
	Init()
	if n > 0 {
		crawlerMenuLinksTotal.Add(float64(n))
	}
}

// ObserveRun counts a finished crawl run.
func ObserveRun(mode, status string) {
	Init()
	crawlerRunsTotal.WithLabelValues(mode, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
