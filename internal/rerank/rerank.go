// Package rerank implements the Reranker & Context Builder (spec §4.6):
// an optional reordering stage over retrieved chunks and the bounded
// context window assembled from the result.
package rerank

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/obslog"
	otelobs "github.com/SaintWyss/ragcore/internal/observability/otel"
	"github.com/SaintWyss/ragcore/internal/ports"
	"github.com/SaintWyss/ragcore/internal/resilience"
	"github.com/SaintWyss/ragcore/internal/retrieval"
)

// Mode selects the reranking strategy (spec §4.6, "Reranker").
type Mode string

const (
	ModeDisabled  Mode = "DISABLED"
	ModeHeuristic Mode = "HEURISTIC"
	ModeModel     Mode = "MODEL"
)

// FallbackCounter records a degraded rerank path.
type FallbackCounter interface {
	IncRetrievalFallback(stage string)
}

// Reranker reorders a retrieved chunk list according to its configured
// Mode. DISABLED is a pass-through; HEURISTIC applies a deterministic
// scoring function; MODEL delegates to a cross-encoder port and falls
// back to the pre-rerank order on a transient failure, never failing the
// request (spec §4.6).
type Reranker struct {
	mode      Mode
	model     ports.RerankPort
	fallbacks FallbackCounter
	logger    *zap.Logger
	now       func() time.Time
	breaker   *resilience.Breaker
}

// New constructs a Reranker. model may be nil unless mode is MODEL.
func New(mode Mode, model ports.RerankPort, fallbacks FallbackCounter, logger *zap.Logger, now func() time.Time) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Reranker{mode: mode, model: model, fallbacks: fallbacks, logger: logger, now: now, breaker: resilience.NewBreaker("rerank-model")}
}

// DocumentRecency supplies the document creation time a chunk belongs
// to, for the heuristic recency bonus. A zero-valued lookup always
// scores recency as neutral.
type DocumentRecency func(documentID string) time.Time

// Rerank reorders chunks according to the configured mode. The input is
// never mutated; DISABLED mode and the fallback paths return the input
// slice itself.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []retrieval.ScoredChunk, recency DocumentRecency) []retrieval.ScoredChunk {
	switch r.mode {
	case ModeHeuristic:
		return r.heuristic(query, chunks, recency)
	case ModeModel:
		return r.modelRerank(ctx, query, chunks)
	default:
		return chunks
	}
}

// heuristic applies a deterministic reordering based on exact keyword
// overlap, a chunk-length penalty, and a document-recency bonus (spec
// §4.6, "HEURISTIC").
func (r *Reranker) heuristic(query string, chunks []retrieval.ScoredChunk, recency DocumentRecency) []retrieval.ScoredChunk {
	queryTerms := tokenize(query)
	out := make([]retrieval.ScoredChunk, len(chunks))
	copy(out, chunks)

	type scored struct {
		chunk retrieval.ScoredChunk
		score float64
	}
	now := r.now()
	scoredChunks := make([]scored, len(out))
	for i, c := range out {
		overlap := keywordOverlap(queryTerms, tokenize(c.Content))
		lengthPenalty := lengthPenalty(c.Content)
		recencyBonus := 0.0
		if recency != nil {
			age := now.Sub(recency(c.DocumentID))
			recencyBonus = recencyScore(age)
		}
		scoredChunks[i] = scored{chunk: c, score: c.Score + overlap - lengthPenalty + recencyBonus}
	}

	sort.SliceStable(scoredChunks, func(i, j int) bool {
		if scoredChunks[i].score != scoredChunks[j].score {
			return scoredChunks[i].score > scoredChunks[j].score
		}
		if scoredChunks[i].chunk.DocumentID != scoredChunks[j].chunk.DocumentID {
			return scoredChunks[i].chunk.DocumentID < scoredChunks[j].chunk.DocumentID
		}
		return scoredChunks[i].chunk.ChunkIndex < scoredChunks[j].chunk.ChunkIndex
	})

	for i, s := range scoredChunks {
		out[i] = s.chunk
	}
	return out
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

func keywordOverlap(query, content map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for w := range query {
		if content[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query)) * 0.1
}

// lengthPenalty mildly discounts chunks far from the target chunk size,
// discouraging very short fragments with little standalone context.
func lengthPenalty(content string) float64 {
	const target = 900.0
	n := float64(len([]rune(content)))
	if n >= target {
		return 0
	}
	return (target - n) / target * 0.02
}

// recencyScore decays linearly over 30 days, capped at a small bonus so
// it never overrides genuine relevance signals.
func recencyScore(age time.Duration) float64 {
	const window = 30 * 24 * time.Hour
	if age < 0 {
		age = 0
	}
	if age >= window {
		return 0
	}
	return (1 - float64(age)/float64(window)) * 0.03
}

// modelRerank scores every chunk against query through the cross-encoder
// port. A transient failure falls back to the pre-rerank order with a
// fallback-counter increment; it never fails the request.
func (r *Reranker) modelRerank(ctx context.Context, query string, chunks []retrieval.ScoredChunk) []retrieval.ScoredChunk {
	if r.model == nil || len(chunks) == 0 {
		return chunks
	}
	ctx, span := otelobs.StartSpan(ctx, "rerank.modelRerank", attribute.Int("candidate_count", len(chunks)))
	defer span.End()

	candidates := make([]string, len(chunks))
	for i, c := range chunks {
		candidates[i] = c.Content
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.model.Score(ctx, query, candidates)
	})
	var scores []float64
	if err == nil {
		scores = result.([]float64)
	}
	if err != nil {
		otelobs.RecordError(span, err)
		r.logger.Warn("model rerank degraded, falling back to pre-rerank order", obslog.RetrievalFields("rerank-fallback", "").Error(err).Zap()...)
		if r.fallbacks != nil {
			r.fallbacks.IncRetrievalFallback("rerank")
		}
		return chunks
	}
	if len(scores) != len(chunks) {
		r.logger.Warn("model rerank returned a mismatched score count, falling back", obslog.RetrievalFields("rerank-fallback", "").Custom("got", len(scores)).Custom("want", len(chunks)).Zap()...)
		if r.fallbacks != nil {
			r.fallbacks.IncRetrievalFallback("rerank")
		}
		return chunks
	}

	out := make([]retrieval.ScoredChunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out
}

// ContextChunk is a single chunk actually included in a built context
// window, alongside the stable source marker it was prefixed with.
type ContextChunk struct {
	retrieval.ScoredChunk
	Marker string
}

// Context is the pure, deterministic output of the context builder
// (spec §4.6, "Context builder").
type Context struct {
	Text     string
	Included []ContextChunk
}

// BuildContext concatenates chunks in rank order into a single string,
// prefixing each with a "[Source: {title}, Part {chunk_index}]" marker,
// until budgetChars is exhausted. A chunk that would overflow the
// budget is skipped, not truncated, and chunks after it are still
// considered (smaller ones may still fit).
func BuildContext(chunks []retrieval.ScoredChunk, budgetChars int) Context {
	var b strings.Builder
	included := make([]ContextChunk, 0, len(chunks))
	remaining := budgetChars

	for _, c := range chunks {
		marker := formatMarker(c.DocumentTitle, c.ChunkIndex)
		block := marker + "\n" + c.Content + "\n\n"
		if len(block) > remaining {
			continue
		}
		b.WriteString(block)
		remaining -= len(block)
		included = append(included, ContextChunk{ScoredChunk: c, Marker: marker})
	}

	return Context{Text: strings.TrimRight(b.String(), "\n"), Included: included}
}

func formatMarker(title string, chunkIndex int) string {
	return "[Source: " + title + ", Part " + strconv.Itoa(chunkIndex) + "]"
}
