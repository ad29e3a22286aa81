// Package telemetry exposes Prometheus metrics for sync runs and triggers.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quickedit/internal/models"
)

const namespace = "quickedit"

// Metrics holds the collectors. It implements the engine metrics sink and
// can be registered as a scheduler run observer.
type Metrics struct {
	registry *prometheus.Registry

	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	products  *prometheus.CounterVec
	mutations *prometheus.CounterVec
	retries   *prometheus.CounterVec
	cost      prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Finished sync runs by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Wall-clock duration of sync runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"action"}),
		products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_products_total",
			Help:      "Products processed by sync runs, by stage.",
		}, []string{"stage"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_mutations_total",
			Help:      "Product mutations by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_retries_total",
			Help:      "Retried catalog calls by operation.",
		}, []string{"operation"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cost_points_total",
			Help:      "Rate-limit cost points consumed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.duration, m.products, m.mutations, m.retries, m.cost,
	)
	return m
}

// Retry counts a retried catalog call.
func (m *Metrics) Retry(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}

// Mutation counts a product mutation.
func (m *Metrics) Mutation(result string) {
	m.mutations.WithLabelValues(result).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(s models.RunSummary) {
	outcome := string(s.Outcome)
	if s.Truncated {
		outcome = "truncated"
	}
	m.runs.WithLabelValues(s.Action, outcome).Inc()
	m.duration.WithLabelValues(s.Action).Observe(s.Elapsed.Seconds())
	m.products.WithLabelValues("scanned").Add(float64(s.Scanned))
	m.products.WithLabelValues("matched").Add(float64(s.Matched))
	m.products.WithLabelValues("updated").Add(float64(s.Updated))
	m.products.WithLabelValues("failed").Add(float64(s.Failed))
	if s.CostUsed > 0 {
		m.cost.Add(s.CostUsed)
	}
}

// TrackTriggers exports the active trigger count read from count.
func (m *Metrics) TrackTriggers(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_triggers",
		Help:      "Recurring sync triggers currently scheduled.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
