package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/SaintWyss/ragcore/internal/metrics"
)

func TestRegistry_IncDedupHit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.IncDedupHit()
	m.IncDedupHit()

	got := testutil.ToFloat64(m.DedupHitTotal)
	if got != 2 {
		t.Fatalf("expected 2 dedup hits, got %v", got)
	}
}

func TestRegistry_IncRetrievalFallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.IncRetrievalFallback("sparse")
	m.IncRetrievalFallback("sparse")
	m.IncRetrievalFallback("rerank")

	if got := testutil.ToFloat64(m.RetrievalFallbackTotal.WithLabelValues("sparse")); got != 2 {
		t.Fatalf("expected 2 sparse fallbacks, got %v", got)
	}
	if got := testutil.ToFloat64(m.RetrievalFallbackTotal.WithLabelValues("rerank")); got != 1 {
		t.Fatalf("expected 1 rerank fallback, got %v", got)
	}
}

func TestRegistry_IncPolicyRefusal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.IncPolicyRefusal()

	if got := testutil.ToFloat64(m.PolicyRefusalTotal); got != 1 {
		t.Fatalf("expected 1 policy refusal, got %v", got)
	}
}

func TestRegistry_IncAnswerWithoutSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.IncAnswerWithoutSources()

	if got := testutil.ToFloat64(m.AnswerWithoutSourcesTotal); got != 1 {
		t.Fatalf("expected 1 answer-without-sources, got %v", got)
	}
}

// TestRegistry_Gather asserts the wire shape Gather produces for a
// labeled counter, the form a /metrics scrape and remote-write client
// both consume.
func TestRegistry_Gather(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.IncRetrievalFallback("dense")
	m.IncRetrievalFallback("dense")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	var fallback *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "ragcore_retrieval_fallback_total" {
			fallback = f
			break
		}
	}
	if fallback == nil {
		t.Fatalf("ragcore_retrieval_fallback_total not found in gathered families")
	}
	if got := fallback.GetType(); got != dto.MetricType_COUNTER {
		t.Fatalf("expected COUNTER metric type, got %v", got)
	}

	var denseMetric *dto.Metric
	for _, metric := range fallback.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "stage" && label.GetValue() == "dense" {
				denseMetric = metric
			}
		}
	}
	if denseMetric == nil {
		t.Fatalf("no stage=dense series in gathered family")
	}
	if got := denseMetric.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 dense fallbacks, got %v", got)
	}
}
