// Package metrics exposes prometheus collectors for the feed pipeline and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	manager "proxyfeed/proxypool"
)

const (
	// MetricsNamespace is the namespace for all proxyfeed metrics.
	MetricsNamespace = "proxyfeed"

	feedSubsystem = "feed"
	httpSubsystem = "http"
)

// Metrics holds all Prometheus metrics. It implements manager.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Feed metrics
	PagesFetchedTotal      *prometheus.CounterVec
	PageFetchSeconds       *prometheus.HistogramVec
	FetchFailuresTotal     *prometheus.CounterVec
	CollectionsTotal       *prometheus.CounterVec
	CollectDurationSeconds prometheus.Histogram
	RecordsExtractedTotal  prometheus.Counter
	RecordsReturnedTotal   prometheus.Counter

	// HTTP metrics
	ResponsesTotal *prometheus.CounterVec
}

// New creates a private registry and registers all metrics on it, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}
	m.initFeedMetrics(factory)
	m.initHTTPMetrics(factory)
	return m
}

func (m *Metrics) initFeedMetrics(factory promauto.Factory) {
	m.PagesFetchedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "pages_fetched_total",
			Help:      "Total number of feed pages fetched successfully",
		},
		[]string{"fetcher"},
	)

	m.PageFetchSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "page_fetch_seconds",
			Help:      "Duration of a single feed page fetch in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"fetcher"},
	)

	m.FetchFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "fetch_failures_total",
			Help:      "Total number of failed page fetches by failure kind",
		},
		[]string{"fetcher", "kind"},
	)

	m.CollectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "collections_total",
			Help:      "Total number of channel collections by result",
		},
		[]string{"result"},
	)

	m.CollectDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "collect_duration_seconds",
			Help:      "Duration of a whole channel collection in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~51s
		},
	)

	m.RecordsExtractedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "records_extracted_total",
			Help:      "Total number of proxy records matched before filtering",
		},
	)

	m.RecordsReturnedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: feedSubsystem,
			Name:      "records_returned_total",
			Help:      "Total number of proxy records returned after filtering and truncation",
		},
	)
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.ResponsesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: httpSubsystem,
			Name:      "responses_total",
			Help:      "Total number of HTTP responses by route and status code",
		},
		[]string{"route", "code"},
	)
}

// PageFetched implements manager.Observer.
func (m *Metrics) PageFetched(fetcher string, took time.Duration) {
	m.PagesFetchedTotal.WithLabelValues(fetcher).Inc()
	m.PageFetchSeconds.WithLabelValues(fetcher).Observe(took.Seconds())
}

// FetchFailed implements manager.Observer.
func (m *Metrics) FetchFailed(fetcher, kind string) {
	m.FetchFailuresTotal.WithLabelValues(fetcher, kind).Inc()
}

// CollectFinished implements manager.Observer.
func (m *Metrics) CollectFinished(report *manager.Report, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CollectionsTotal.WithLabelValues(result).Inc()
	m.CollectDurationSeconds.Observe(report.Took.Seconds())
	if err == nil {
		m.RecordsExtractedTotal.Add(float64(report.Extracted))
		m.RecordsReturnedTotal.Add(float64(len(report.Records)))
	}
}

// ObserveResponse counts one HTTP response.
func (m *Metrics) ObserveResponse(route string, code int) {
	m.ResponsesTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
