// Package metrics exposes Prometheus collectors for the harvester.
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
	pagesFetchedTotal          prometheus.Counter
	messagesParsedTotal        *prometheus.CounterVec
	messagesSkippedTotal       *prometheus.CounterVec
	crawlsTotal                *prometheus.CounterVec
	crawlDurationSeconds       prometheus.Histogram
	resumptionsPublishedTotal  prometheus.Counter
	detectorPublishedTotal     prometheus.Counter
	flattenedRowsTotal         prometheus.Counter
	catalogVideosAddedTotal    prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "livechat_pages_fetched_total",
			Help: "Total number of chat replay pages fetched.",
		})
		messagesParsedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_messages_parsed_total",
			Help: "Total number of chat messages parsed, labeled by kind.",
		}, []string{"kind"})
		messagesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_messages_skipped_total",
			Help: "Total number of chat items skipped, labeled by reason.",
		}, []string{"reason"})
		crawlsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_crawls_total",
			Help: "Total number of crawl invocations, labeled by final state.",
		}, []string{"state"})
		crawlDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "livechat_crawl_duration_seconds",
			Help:    "Histogram of crawl invocation durations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		})
		resumptionsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "livechat_resumptions_published_total",
			Help: "Total number of resume requests published after a suspended crawl.",
		})
		detectorPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "livechat_detector_requests_published_total",
			Help: "Total number of crawl requests published for untouched videos.",
		})
		flattenedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "livechat_flattened_rows_total",
			Help: "Total number of analytics rows written.",
		})
		catalogVideosAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "livechat_catalog_videos_added_total",
			Help: "Total number of videos added to channel catalogs.",
		})
		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livechat_active_workers",
			Help: "Number of workers currently processing a crawl request.",
		})
		rateLimitDelaysSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livechat_rate_limit_delays_seconds",
			Help:    "Histogram of fetch pacing wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"domain"})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"})
		httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"})
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

// ObservePage counts one fetched replay page.
func ObservePage() {
	Init()
	pagesFetchedTotal.Inc()
}

// ObserveMessage counts one parsed message of the given kind.
func ObserveMessage(kind string) {
	Init()
	messagesParsedTotal.WithLabelValues(kind).Inc()
}

// ObserveSkippedMessage counts one chat item dropped for reason.
func ObserveSkippedMessage(reason string) {
	Init()
	messagesSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveCrawl records a finished crawl invocation.
func ObserveCrawl(state string, duration time.Duration) {
	Init()
	crawlsTotal.WithLabelValues(state).Inc()
	crawlDurationSeconds.Observe(duration.Seconds())
}

// ObserveResumption counts one published resume request.
func ObserveResumption() {
	Init()
	resumptionsPublishedTotal.Inc()
}

// ObserveDetectorPublished counts crawl requests issued by the detector.
func ObserveDetectorPublished(n int) {
	Init()
	detectorPublishedTotal.Add(float64(n))
}

// ObserveFlattenedRows counts analytics rows written.
func ObserveFlattenedRows(n int) {
	Init()
	flattenedRowsTotal.Add(float64(n))
}

// ObserveCatalogVideosAdded counts videos newly added by catalog sync.
func ObserveCatalogVideosAdded(n int) {
	Init()
	catalogVideosAddedTotal.Add(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
