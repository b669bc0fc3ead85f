package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the serving layer
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Query metrics
	QueryDuration    *prometheus.HistogramVec
	QueryErrorsTotal *prometheus.CounterVec

	// Refresh cycle metrics
	RefreshCyclesTotal   *prometheus.CounterVec
	RefreshDuration      prometheus.Histogram
	RefreshKeysEvicted   prometheus.Counter

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSBroadcastsTotal   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_cache_hits_total",
				Help: "Cache hits per analytical operation",
			},
			[]string{"operation"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_cache_misses_total",
				Help: "Cache misses per analytical operation",
			},
			[]string{"operation"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_cache_errors_total",
				Help: "Cache store failures, absorbed as misses or dropped writes",
			},
			[]string{"operation"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_query_duration_seconds",
				Help:    "Analytical query execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		QueryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_query_errors_total",
				Help: "Analytical query failures by kind",
			},
			[]string{"operation", "kind"},
		),
		RefreshCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_refresh_cycles_total",
				Help: "Materialized view refresh cycles by outcome",
			},
			[]string{"status"},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulse_refresh_duration_seconds",
				Help:    "Duration of a full refresh cycle in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120},
			},
		),
		RefreshKeysEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_refresh_keys_evicted_total",
				Help: "Cache keys invalidated by refresh cycles",
			},
		),
		WSConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_ws_connections_active",
				Help: "Currently connected WebSocket observers",
			},
		),
		WSBroadcastsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_ws_broadcasts_total",
				Help: "Change notifications broadcast to observers",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.QueryDuration,
		m.QueryErrorsTotal,
		m.RefreshCyclesTotal,
		m.RefreshDuration,
		m.RefreshKeysEvicted,
		m.WSConnectionsActive,
		m.WSBroadcastsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
