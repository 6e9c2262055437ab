// Package metrics exposes Prometheus instrumentation for crawler runs,
// catalog merges and upstream requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javainthinking/skillspick/internal/crawler"
)

// Namespace prefixes every metric name.
const Namespace = "skillspick"

// Metrics holds the ingest pipeline collectors.
type Metrics struct {
	CrawlerRuns        *prometheus.CounterVec
	CrawlerRunDuration *prometheus.HistogramVec
	ItemsMerged        *prometheus.CounterVec
	ItemsSkipped       *prometheus.CounterVec
	MergerRetries      prometheus.Counter
	FetcherRequests    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates and registers the collectors on reg. A nil reg uses a fresh
// registry so repeated construction in tests never collides.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{gatherer: reg}
	m.initCrawlerMetrics(factory)
	m.initStorageMetrics(factory)
	return m
}

func (m *Metrics) initCrawlerMetrics(factory promauto.Factory) {
	m.CrawlerRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crawler_runs_total",
			Help:      "Crawler invocations by outcome",
		},
		[]string{"kind", "outcome"},
	)

	m.CrawlerRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "crawler_run_duration_seconds",
			Help:      "Wall time of one crawler invocation",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
		},
		[]string{"kind"},
	)

	m.ItemsMerged = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crawler_items_merged_total",
			Help:      "Candidates merged into the catalog",
		},
		[]string{"kind"},
	)

	m.ItemsSkipped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crawler_items_skipped_total",
			Help:      "Upstream items skipped as malformed or out of scope",
		},
		[]string{"kind"},
	)
}

func (m *Metrics) initStorageMetrics(factory promauto.Factory) {
	m.MergerRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "merger_retries_total",
			Help:      "Catalog merges retried after a transient storage error",
		},
	)

	m.FetcherRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetcher_requests_total",
			Help:      "Upstream HTTP requests by host and status code (0 for transport errors)",
		},
		[]string{"host", "code"},
	)
}

// ObserveRun implements crawler.RunObserver.
func (m *Metrics) ObserveRun(kind, outcome string, elapsed time.Duration, res *crawler.Result) {
	m.CrawlerRuns.WithLabelValues(kind, outcome).Inc()
	m.CrawlerRunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if res == nil {
		return
	}
	m.ItemsMerged.WithLabelValues(kind).Add(float64(res.Upserted))
	m.ItemsSkipped.WithLabelValues(kind).Add(float64(res.Skipped))
}

// ObserveMergeRetry implements catalog.RetryObserver.
func (m *Metrics) ObserveMergeRetry() {
	m.MergerRetries.Inc()
}

// ObserveRequest implements fetcher.RequestRecorder.
func (m *Metrics) ObserveRequest(host string, code int) {
	m.FetcherRequests.WithLabelValues(host, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
