// Package metrics declares the Prometheus instrumentation surface for
// the core: dedup hits, retrieval fallbacks, policy refusals, and the
// no-source answer rate (spec §4.3, §4.5, §4.7).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every counter and histogram the core publishes. It is
// constructed once per process and injected into the components that
// increment it, rather than consulted through package-level globals.
type Registry struct {
	DedupHitTotal            prometheus.Counter
	RetrievalFallbackTotal   *prometheus.CounterVec
	PolicyRefusalTotal       prometheus.Counter
	AnswerWithoutSourcesTotal prometheus.Counter
	IngestionFailureTotal    prometheus.Counter
	InjectionDetectedTotal   prometheus.Counter
	RetrievalLatencySeconds  prometheus.Histogram
	AnswerLatencySeconds     prometheus.Histogram
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		DedupHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_dedup_hit_total",
			Help: "Document admissions short-circuited by content-hash deduplication.",
		}),
		RetrievalFallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragcore_retrieval_fallback_total",
			Help: "Retrieval pipeline stages that fell back to a degraded path.",
		}, []string{"stage"}),
		PolicyRefusalTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_policy_refusal_total",
			Help: "Answer requests refused by the prompt-injection detector.",
		}),
		AnswerWithoutSourcesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_answer_without_sources_total",
			Help: "Answers returned with zero retrieved chunks.",
		}),
		IngestionFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_ingestion_failure_total",
			Help: "Ingestion jobs that ended in the FAILED state.",
		}),
		InjectionDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_injection_detected_total",
			Help: "Documents whose extracted text tripped the prompt-injection detector during ingestion.",
		}),
		RetrievalLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragcore_retrieval_latency_seconds",
			Help:    "End-to-end retrieval pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
		AnswerLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragcore_answer_latency_seconds",
			Help:    "End-to-end answer generation latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.DedupHitTotal,
		m.RetrievalFallbackTotal,
		m.PolicyRefusalTotal,
		m.AnswerWithoutSourcesTotal,
		m.IngestionFailureTotal,
		m.InjectionDetectedTotal,
		m.RetrievalLatencySeconds,
		m.AnswerLatencySeconds,
	)
	return m
}

// IncDedupHit implements document.DedupCounter.
func (m *Registry) IncDedupHit() { m.DedupHitTotal.Inc() }

// IncRetrievalFallback implements retrieval.FallbackCounter / rerank.FallbackCounter.
func (m *Registry) IncRetrievalFallback(stage string) { m.RetrievalFallbackTotal.WithLabelValues(stage).Inc() }

// IncPolicyRefusal implements answer.Counters.
func (m *Registry) IncPolicyRefusal() { m.PolicyRefusalTotal.Inc() }

// IncAnswerWithoutSources implements answer.Counters.
func (m *Registry) IncAnswerWithoutSources() { m.AnswerWithoutSourcesTotal.Inc() }

// IncIngestionFailure implements ingest.Counters.
func (m *Registry) IncIngestionFailure() { m.IngestionFailureTotal.Inc() }

// IncInjectionDetected implements ingest.Counters.
func (m *Registry) IncInjectionDetected() { m.InjectionDetectedTotal.Inc() }
