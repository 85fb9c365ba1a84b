package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kiln-ai/router/pkg/models"
)

// Metrics is the Dispatcher's own counter/histogram pair, kept distinct
// from internal/usage.MetricsCollector's per-(provider,model) gauges:
// this one tracks the dispatch call itself, not the rolling reliability
// stats.
type Metrics struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewMetrics registers the dispatch counter/histogram family on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Subsystem: "dispatcher",
			Name:      "dispatch_total",
			Help:      "Total Dispatcher calls by provider/model/outcome.",
		}, []string{"provider", "model", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Subsystem: "dispatcher",
			Name:      "dispatch_latency_seconds",
			Help:      "Dispatcher call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "model"}),
	}
	registry.MustRegister(m.dispatches, m.latency)
	return m
}

// ObserveDispatch records one terminal dispatch outcome. A nil Metrics is
// a valid no-op receiver.
func (m *Metrics) ObserveDispatch(provider models.ProviderId, model, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(provider), model, outcome).Inc()
	m.latency.WithLabelValues(string(provider), model).Observe(latency.Seconds())
}
