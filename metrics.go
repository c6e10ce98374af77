package berth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "berth"

// Metrics is a Middleware that counts registry events in Prometheus.
type Metrics struct {
	activations *prometheus.CounterVec
	releases    *prometheus.CounterVec
	disposals   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. Either all of
// them are registered or, on error, none are.
//
// Example:
//
//	metrics, err := berth.NewMetrics(prometheus.DefaultRegisterer)
//	reg := berth.NewRegistry(container, berth.WithMiddleware(metrics))
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "activations_total",
			Help:      "Scoped service activation attempts by result.",
		}, []string{"result"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "releases_total",
			Help:      "Scoped service releases by result.",
		}, []string{"result"}),
		disposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registry_disposals_total",
			Help:      "Bulk registry disposal passes by result.",
		}, []string{"result"}),
	}

	var registered []prometheus.Collector
	for _, c := range []prometheus.Collector{m.activations, m.releases, m.disposals} {
		if err := reg.Register(c); err != nil {
			// Leave reg as it was so a retry can succeed.
			for _, done := range registered {
				reg.Unregister(done)
			}
			return nil, err
		}
		registered = append(registered, c)
	}

	return m, nil
}

// BeforeActivate implements Middleware.
func (m *Metrics) BeforeActivate(context.Context, ScopeID, TypeKey) error {
	return nil
}

// AfterActivate implements Middleware.
func (m *Metrics) AfterActivate(_ context.Context, _ ScopeID, _ TypeKey, _ any, err error) {
	m.activations.WithLabelValues(result(err)).Inc()
}

// AfterRelease implements Middleware.
func (m *Metrics) AfterRelease(_ context.Context, _ ScopeID, _ TypeKey, err error) {
	m.releases.WithLabelValues(result(err)).Inc()
}

// AfterDispose implements Middleware.
func (m *Metrics) AfterDispose(_ context.Context, _ int, err error) {
	m.disposals.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RegistryCollector exports the registry's current size on every scrape.
type RegistryCollector struct {
	registry *Registry
	entries  *prometheus.Desc
	scopes   *prometheus.Desc
	disposed *prometheus.Desc
}

// NewRegistryCollector creates a collector for r. Register it with a
// prometheus.Registerer.
func NewRegistryCollector(r *Registry) *RegistryCollector {
	return &RegistryCollector{
		registry: r,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "entries"),
			"Registry entries by state.",
			[]string{"state"}, nil,
		),
		scopes: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "scopes"),
			"Scopes owning at least one entry.",
			nil, nil,
		),
		disposed: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "registry_disposed"),
			"1 once the registry has been disposed.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.scopes
	ch <- c.disposed
}

// Collect implements prometheus.Collector.
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	var live, released float64
	for _, info := range c.registry.Entries(EntryQuery{}) {
		if info.Released {
			released++
		} else {
			live++
		}
	}

	disposed := 0.0
	if c.registry.IsDisposed() {
		disposed = 1
	}

	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, live, "live")
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, released, "released")
	ch <- prometheus.MustNewConstMetric(c.scopes, prometheus.GaugeValue, float64(len(c.registry.Scopes())))
	ch <- prometheus.MustNewConstMetric(c.disposed, prometheus.GaugeValue, disposed)
}
