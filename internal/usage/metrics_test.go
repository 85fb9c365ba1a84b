package usage

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/kiln-ai/router/pkg/models"
)

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels prometheus.Labels) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := vec.With(labels).Write(m); err != nil {
		t.Fatalf("unexpected error reading gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, lvs ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := vec.WithLabelValues(lvs...).Write(m); err != nil {
		t.Fatalf("unexpected error reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsCollectorObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewMetricsCollector(registry)

	key := models.StatsKey{Provider: "openai", Model: "gpt-4"}
	entry := models.StatsEntry{Requests: 10, Successes: 9, Failures: 1, LatencySamples: []float64{100, 200, 300}}
	c.Observe(key, entry)

	labels := prometheus.Labels{"provider": "openai", "model": "gpt-4"}
	if got := gaugeValue(t, c.successRate, labels); got != entry.SuccessRate() {
		t.Fatalf("expected success_rate gauge %v, got %v", entry.SuccessRate(), got)
	}
	if got := gaugeValue(t, c.p95Latency, labels); got != P95(entry) {
		t.Fatalf("expected p95 gauge %v, got %v", P95(entry), got)
	}
}

func TestMetricsCollectorIncrementRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewMetricsCollector(registry)

	key := models.StatsKey{Provider: "anthropic", Model: "claude-3"}
	c.IncrementRequest(key, "success")
	c.IncrementRequest(key, "success")
	c.IncrementRequest(key, "failure")

	if got := counterValue(t, c.requests, "anthropic", "claude-3", "success"); got != 2 {
		t.Fatalf("expected 2 success requests, got %v", got)
	}
	if got := counterValue(t, c.requests, "anthropic", "claude-3", "failure"); got != 1 {
		t.Fatalf("expected 1 failure request, got %v", got)
	}
}

func TestMetricsCollectorRegistersOnConstruction(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetricsCollector(registry)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected metric families to be registered")
	}
}
