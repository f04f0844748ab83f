// Package metrics exposes restpub's Prometheus collectors on a private registry.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restpub"

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	rewires          *prometheus.CounterVec
	rewireDuration   prometheus.Histogram
	dispatches       *prometheus.CounterVec
	publishedEndpts  prometheus.Gauge
	activeBeans      prometheus.Gauge
	staticMounts     prometheus.Gauge
	docsRedirects    prometheus.Counter
	moduleReloads    *prometheus.CounterVec
	directoryDeletes prometheus.Counter
}

// New registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		rewires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewires_total",
			Help:      "Dispatch server rewires by result (ok, error, skipped).",
		}, []string{"result"}),
		rewireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rewire_duration_seconds",
			Help:      "Time spent building, draining and swapping dispatch instances.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Requests dispatched into the live instance by result.",
		}, []string{"result"}),
		publishedEndpts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "published_endpoints",
			Help:      "Endpoints currently registered.",
		}),
		activeBeans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_resources",
			Help:      "Resources bound into the live dispatch instance.",
		}),
		staticMounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "static_mounts",
			Help:      "Static asset mounts currently registered.",
		}),
		docsRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docs_redirects_total",
			Help:      "Requests redirected to the documentation viewer.",
		}),
		moduleReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_reloads_total",
			Help:      "Module directory reconciliations by result.",
		}, []string{"result"}),
		directoryDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_gc_deleted_total",
			Help:      "Stale endpoint directory records deleted.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rewires,
		m.rewireDuration,
		m.dispatches,
		m.publishedEndpts,
		m.activeBeans,
		m.staticMounts,
		m.docsRedirects,
		m.moduleReloads,
		m.directoryDeletes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RewireSkipped() {
	if m == nil {
		return
	}
	m.rewires.WithLabelValues("skipped").Inc()
}

func (m *Metrics) RewireDone(d time.Duration, beans int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.rewires.WithLabelValues("error").Inc()
		return
	}
	m.rewires.WithLabelValues("ok").Inc()
	m.rewireDuration.Observe(d.Seconds())
	m.activeBeans.Set(float64(beans))
}

func (m *Metrics) Dispatched(result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPublishedEndpoints(n int) {
	if m == nil {
		return
	}
	m.publishedEndpts.Set(float64(n))
}

func (m *Metrics) SetStaticMounts(n int) {
	if m == nil {
		return
	}
	m.staticMounts.Set(float64(n))
}

func (m *Metrics) DocsRedirected() {
	if m == nil {
		return
	}
	m.docsRedirects.Inc()
}

func (m *Metrics) ModulesReloaded(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.moduleReloads.WithLabelValues("error").Inc()
		return
	}
	m.moduleReloads.WithLabelValues("ok").Inc()
}

func (m *Metrics) DirectoryDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.directoryDeletes.Add(float64(n))
}
