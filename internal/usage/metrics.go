package usage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kiln-ai/router/pkg/models"
)

// MetricsCollector exposes derived Stats values as Prometheus gauges per
// (provider, model).
type MetricsCollector struct {
	registry    *prometheus.Registry
	successRate *prometheus.GaugeVec
	p95Latency  *prometheus.GaugeVec
	requests    *prometheus.CounterVec
}

// NewMetricsCollector registers the Usage Stats gauge/counter family on
// registry (pass prometheus.NewRegistry() for an isolated test registry,
// or prometheus.DefaultRegisterer's registry in production).
func NewMetricsCollector(registry *prometheus.Registry) *MetricsCollector {
	c := &MetricsCollector{
		registry: registry,
		successRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kiln",
			Subsystem: "usage",
			Name:      "success_rate",
			Help:      "Rolling success rate per provider/model.",
		}, []string{"provider", "model"}),
		p95Latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kiln",
			Subsystem: "usage",
			Name:      "p95_latency_ms",
			Help:      "p95 latency in milliseconds over the last 100 samples.",
		}, []string{"provider", "model"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Subsystem: "usage",
			Name:      "requests_total",
			Help:      "Total requests recorded per provider/model.",
		}, []string{"provider", "model", "outcome"}),
	}
	registry.MustRegister(c.successRate, c.p95Latency, c.requests)
	return c
}

// Observe updates the gauges for key from a fresh snapshot entry. Callers
// typically call this after every RecordSuccess/RecordFailure, or on a
// periodic sweep over Stats.Snapshot().
func (c *MetricsCollector) Observe(key models.StatsKey, entry models.StatsEntry) {
	labels := prometheus.Labels{"provider": string(key.Provider), "model": key.Model}
	c.successRate.With(labels).Set(entry.SuccessRate())
	c.p95Latency.With(labels).Set(P95(entry))
}

// IncrementRequest records one terminal outcome for key.
func (c *MetricsCollector) IncrementRequest(key models.StatsKey, outcome string) {
	c.requests.WithLabelValues(string(key.Provider), key.Model, outcome).Inc()
}
