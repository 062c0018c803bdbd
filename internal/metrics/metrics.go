// Package metrics holds the Prometheus collectors for Raido.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	QueryDuration *prometheus.HistogramVec
	QueryMatched  *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	DraftWrites   *prometheus.CounterVec
	DraftOps      *prometheus.CounterVec
	CatalogEvents *prometheus.CounterVec
	Collections   prometheus.Gauge
	FormSessions  prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates and registers all collectors under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent running the record query pipeline",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		}, []string{"collection"}),
		QueryMatched: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_matched_records",
			Help:      "Records matching search and filters per query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"collection"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_lookups_total",
			Help:      "Query result cache lookups",
		}, []string{"result"}),
		DraftWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_writes_total",
			Help:      "Debounced draft writes by outcome",
		}, []string{"status"}),
		DraftOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_operations_total",
			Help:      "Draft restore, discard and submit operations",
		}, []string{"operation"}),
		CatalogEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_events_total",
			Help:      "Collections reloaded or removed by the file watcher",
		}, []string{"kind"}),
		Collections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_collections",
			Help:      "Number of loaded collections",
		}),
		FormSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "form_sessions",
			Help:      "Open form sessions",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveQuery records one pipeline run.
func (m *Metrics) ObserveQuery(collection string, took time.Duration, matched int) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(collection).Observe(took.Seconds())
	m.QueryMatched.WithLabelValues(collection).Observe(float64(matched))
}

// CacheLookup records a result-cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// DraftWrite records a draft write outcome.
func (m *Metrics) DraftWrite(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DraftWrites.WithLabelValues(status).Inc()
}

// DraftOp counts a draft restore, discard or submit.
func (m *Metrics) DraftOp(op string) {
	if m == nil {
		return
	}
	m.DraftOps.WithLabelValues(op).Inc()
}

// CatalogEvent counts a watcher event and updates the collection gauge.
func (m *Metrics) CatalogEvent(kind string, collections int) {
	if m == nil {
		return
	}
	m.CatalogEvents.WithLabelValues(kind).Inc()
	m.Collections.Set(float64(collections))
}

// SetCollections sets the collection gauge.
func (m *Metrics) SetCollections(n int) {
	if m == nil {
		return
	}
	m.Collections.Set(float64(n))
}

// SetFormSessions sets the open form session gauge.
func (m *Metrics) SetFormSessions(n int) {
	if m == nil {
		return
	}
	m.FormSessions.Set(float64(n))
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
