// Package metrics exposes census-map Prometheus metrics on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "censusmap"

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	renders             *prometheus.CounterVec
	renderDuration      prometheus.Histogram
	sourceLoadDuration  *prometheus.HistogramVec
	datasetRows         *prometheus.GaugeVec
}

// New creates a fresh Metrics registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served by the dashboard",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the dashboard",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	renders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "map_renders_total",
		Help:      "Map figure requests by cache outcome",
	}, []string{"cache"})

	renderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "map_render_duration_seconds",
		Help:      "Time to build and encode a map figure on a cache miss",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	sourceLoadDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "source_load_duration_seconds",
		Help:      "Duration of startup source loads",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"source"})

	datasetRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dataset_rows",
		Help:      "Rows held in the loaded data context",
	}, []string{"dataset"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		renders,
		renderDuration,
		sourceLoadDuration,
		datasetRows,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		renders:             renders,
		renderDuration:      renderDuration,
		sourceLoadDuration:  sourceLoadDuration,
		datasetRows:         datasetRows,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveRender records one map request. duration is only observed on a
// cache miss.
func (m *Metrics) ObserveRender(cacheHit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if cacheHit {
		m.renders.WithLabelValues("hit").Inc()
		return
	}
	m.renders.WithLabelValues("miss").Inc()
	m.renderDuration.Observe(duration.Seconds())
}

// ObserveSourceLoad records how long a startup source took to load.
func (m *Metrics) ObserveSourceLoad(source string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sourceLoadDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// SetDatasetRows records the size of a loaded dataset.
func (m *Metrics) SetDatasetRows(dataset string, rows int) {
	if m == nil {
		return
	}
	m.datasetRows.WithLabelValues(dataset).Set(float64(rows))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
