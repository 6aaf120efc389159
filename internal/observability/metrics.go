package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons recorded when the rewriter drops a bundled asset
const (
	SkipMissingBundleMapping = "missing_bundle_mapping"
	SkipStaleArtifact        = "stale_artifact"
	SkipUnsupportedAssetType = "unsupported_asset_type"
)

// Metrics holds all Prometheus metrics for webpackbridge. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Bundler metrics
	bundlerRunsTotal    *prometheus.CounterVec
	bundlerRunDuration  *prometheus.HistogramVec
	bundlerEntrypoints  *prometheus.GaugeVec
	devServerOutputLine prometheus.Counter

	// Asset rewrite metrics
	assetRewritesTotal     *prometheus.CounterVec
	assetDescriptorsTotal  *prometheus.CounterVec
	assetSkippedTotal      *prometheus.CounterVec
	devServerProbesTotal   *prometheus.CounterVec
	devServerProbeDuration prometheus.Histogram

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry registers all metrics on reg and serves them from
// gatherer. Tests pass a fresh prometheus.NewRegistry() for both.
func NewMetricsWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webpackbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webpackbridge_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webpackbridge_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		bundlerRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webpackbridge_bundler_runs_total",
				Help: "Total number of bundler invocations",
			},
			[]string{"command", "status"},
		),
		bundlerRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webpackbridge_bundler_run_duration_seconds",
				Help:    "Bundler run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"command"},
		),
		bundlerEntrypoints: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webpackbridge_bundler_entrypoints",
				Help: "Number of entry points reported by the last bundler run",
			},
			[]string{"command"},
		),
		devServerOutputLine: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webpackbridge_dev_server_output_lines_total",
				Help: "Total number of output lines read from the dev server",
			},
		),

		assetRewritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webpackbridge_asset_rewrites_total",
				Help: "Total number of JS asset resolutions by mode",
			},
			[]string{"mode"},
		),
		assetDescriptorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webpackbridge_asset_descriptors_total",
				Help: "Total number of rewritten asset descriptors emitted",
			},
			[]string{"mode", "scope"},
		),
		assetSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webpackbridge_asset_skipped_total",
				Help: "Total number of bundled assets omitted from the output",
			},
			[]string{"reason"},
		),
		devServerProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webpackbridge_dev_server_probes_total",
				Help: "Total number of dev server reachability checks",
			},
			[]string{"result"},
		),
		devServerProbeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webpackbridge_dev_server_probe_duration_seconds",
				Help:    "Dev server TCP probe latency in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5},
			},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webpackbridge_uptime_seconds",
				Help: "Time since the server started in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		status := statusClass(c.Response().StatusCode())
		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordBundlerRun records one build, build-single or serve invocation
func (m *Metrics) RecordBundlerRun(command string, entrypoints int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.bundlerRunsTotal.WithLabelValues(command, status).Inc()
	m.bundlerRunDuration.WithLabelValues(command).Observe(duration.Seconds())
	m.bundlerEntrypoints.WithLabelValues(command).Set(float64(entrypoints))
}

// RecordDevServerOutput counts one line of dev server output
func (m *Metrics) RecordDevServerOutput() {
	if m == nil {
		return
	}
	m.devServerOutputLine.Inc()
}

// RecordRewrite records one JS asset resolution. mode is dev, prod or passthrough.
func (m *Metrics) RecordRewrite(mode string) {
	if m == nil {
		return
	}
	m.assetRewritesTotal.WithLabelValues(mode).Inc()
}

// RecordDescriptor records one emitted descriptor
func (m *Metrics) RecordDescriptor(mode, scope string) {
	if m == nil {
		return
	}
	m.assetDescriptorsTotal.WithLabelValues(mode, scope).Inc()
}

// RecordSkip records a bundled asset left out of the rewrite
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.assetSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordProbe records a dev server reachability check. result is
// reachable, unreachable or cached.
func (m *Metrics) RecordProbe(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.devServerProbesTotal.WithLabelValues(result).Inc()
	if result != "cached" {
		m.devServerProbeDuration.Observe(duration.Seconds())
	}
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
