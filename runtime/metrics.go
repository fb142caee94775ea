package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports runtime bookkeeping as Prometheus metrics. Every metric
// carries a runtime label so several runtimes can share a registry.
type Collector struct {
	fetch func() Stats

	registrations    *prometheus.Desc
	finalized        *prometheus.Desc
	callbackFailures *prometheus.Desc
	callbackPanics   *prometheus.Desc
	scripts          *prometheus.Desc
	contexts         *prometheus.Desc
}

// NewCollector creates a collector for r. WithMetrics registers one
// automatically.
func NewCollector(r *Runtime) *Collector {
	labels := prometheus.Labels{"runtime": r.id}
	return &Collector{
		fetch: r.Stats,
		registrations: prometheus.NewDesc(
			"jsrt_registrations",
			"Host registrations currently held by the engine",
			[]string{"type"}, labels,
		),
		finalized: prometheus.NewDesc(
			"jsrt_finalized_total",
			"Host registrations destroyed by collection, severance or disposal",
			[]string{"type"}, labels,
		),
		callbackFailures: prometheus.NewDesc(
			"jsrt_callback_failures_total",
			"Host function calls that threw into script",
			nil, labels,
		),
		callbackPanics: prometheus.NewDesc(
			"jsrt_callback_panics_total",
			"Host function panics recovered at the engine boundary",
			nil, labels,
		),
		scripts: prometheus.NewDesc(
			"jsrt_scripts_total",
			"Scripts run",
			nil, labels,
		),
		contexts: prometheus.NewDesc(
			"jsrt_contexts",
			"Contexts created in the runtime",
			nil, labels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.registrations
	ch <- c.finalized
	ch <- c.callbackFailures
	ch <- c.callbackPanics
	ch <- c.scripts
	ch <- c.contexts
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.fetch()
	ch <- prometheus.MustNewConstMetric(c.registrations, prometheus.GaugeValue, float64(s.LiveFunctions), "function")
	ch <- prometheus.MustNewConstMetric(c.registrations, prometheus.GaugeValue, float64(s.LiveExternals), "external")
	ch <- prometheus.MustNewConstMetric(c.finalized, prometheus.CounterValue, float64(s.FunctionsFinalized), "function")
	ch <- prometheus.MustNewConstMetric(c.finalized, prometheus.CounterValue, float64(s.ExternalsFinalized), "external")
	ch <- prometheus.MustNewConstMetric(c.callbackFailures, prometheus.CounterValue, float64(s.CallbackFailures))
	ch <- prometheus.MustNewConstMetric(c.callbackPanics, prometheus.CounterValue, float64(s.CallbackPanics))
	ch <- prometheus.MustNewConstMetric(c.scripts, prometheus.CounterValue, float64(s.ScriptsRun))
	ch <- prometheus.MustNewConstMetric(c.contexts, prometheus.GaugeValue, float64(s.Contexts))
}
