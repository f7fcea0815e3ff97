// Package retrieval implements the Retriever (spec §4.5): hybrid
// dense+sparse search fused with Reciprocal Rank Fusion, with graceful
// degradation when the sparse channel fails.
package retrieval

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/obslog"
	otelobs "github.com/SaintWyss/ragcore/internal/observability/otel"
)

// Source identifies which channel(s) contributed a scored chunk.
type Source string

const (
	SourceDense  Source = "dense"
	SourceSparse Source = "sparse"
	SourceBoth   Source = "both"
)

// ScoredChunk is a single ranked retrieval result (spec §4.5,
// "Inputs/outputs").
type ScoredChunk struct {
	ChunkID        string
	DocumentID     string
	DocumentTitle  string
	ChunkIndex     int
	Content        string
	Score          float64
	Source         Source
}

// ChannelResult is one row of the raw, unfused output of the dense or
// sparse channel, ranked ascending by distance / descending by lexical score
// respectively — the channel implementation is responsible for ordering;
// Retriever only consumes rank position.
type ChannelResult struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	ChunkIndex    int
	Content       string
}

// DenseChannel executes the ANN search of spec §4.5, "Dense channel".
type DenseChannel interface {
	Search(ctx context.Context, workspaceID string, queryEmbedding []float32, fetchK int) ([]ChannelResult, error)
}

// SparseChannel executes the full-text search of spec §4.5, "Sparse
// channel". Implementations classify their own transient errors as
// apperrors.ErrorTypeUpstreamTimeout/Unavailable so the Retriever can
// tell a degradable failure from a permanent one.
type SparseChannel interface {
	Search(ctx context.Context, workspaceID, language, query string, fetchK int) ([]ChannelResult, error)
}

// FallbackCounter records a degraded retrieval path (spec §4.5,
// "Graceful degradation").
type FallbackCounter interface {
	IncRetrievalFallback(stage string)
}

// Options configures a single retrieval call (spec §4.5, "Inputs/outputs").
type Options struct {
	WorkspaceID      string
	Query            string
	QueryEmbedding   []float32
	TopK             int
	HybridEnabled    bool
	Language         string
	RRFK             int
}

const (
	defaultTopK = 5
	maxTopK     = 50
	minFetchK   = 20
	fetchKMultiplier = 4
)

// Retriever is the Retriever component (C5).
type Retriever struct {
	dense     DenseChannel
	sparse    SparseChannel
	fallbacks FallbackCounter
	logger    *zap.Logger
}

// New constructs a Retriever. sparse may be nil, in which case hybrid
// mode degrades to dense-only regardless of Options.HybridEnabled.
func New(dense DenseChannel, sparse SparseChannel, fallbacks FallbackCounter, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{dense: dense, sparse: sparse, fallbacks: fallbacks, logger: logger}
}

// Retrieve runs the hybrid retrieval pipeline and returns a fused,
// deterministically-sorted, tenant-isolated result list (spec §4.5).
func (r *Retriever) Retrieve(ctx context.Context, opts Options) ([]ScoredChunk, error) {
	ctx, span := otelobs.StartSpan(ctx, "retrieval.Retrieve",
		attribute.String("workspace_id", opts.WorkspaceID),
		attribute.Bool("hybrid_enabled", opts.HybridEnabled),
	)
	defer span.End()

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	fetchK := topK * fetchKMultiplier
	if fetchK < minFetchK {
		fetchK = minFetchK
	}
	rrfK := opts.RRFK
	if rrfK <= 0 {
		rrfK = 60
	}

	denseResults, err := r.dense.Search(ctx, opts.WorkspaceID, opts.QueryEmbedding, fetchK)
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "dense retrieval failed")
		otelobs.RecordError(span, wrapped)
		return nil, wrapped
	}

	if !opts.HybridEnabled || r.sparse == nil {
		return truncate(denseOnly(denseResults), topK), nil
	}

	sparseResults, err := r.sparse.Search(ctx, opts.WorkspaceID, opts.Language, opts.Query, fetchK)
	if err != nil {
		if !resilience_isTransient(err) {
			wrapped := apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "sparse retrieval failed")
			otelobs.RecordError(span, wrapped)
			return nil, wrapped
		}
		r.logger.Warn("sparse retrieval channel degraded, falling back to dense-only", obslog.RetrievalFields("sparse-fallback", opts.WorkspaceID).Error(err).Zap()...)
		if r.fallbacks != nil {
			r.fallbacks.IncRetrievalFallback("sparse")
		}
		return truncate(denseOnly(denseResults), topK), nil
	}

	fused := fuse(denseResults, sparseResults, rrfK)
	return truncate(fused, topK), nil
}

// resilience_isTransient applies the same classification rule as
// resilience.Classify directly against the apperrors taxonomy.
func resilience_isTransient(err error) bool {
	return apperrors.IsType(err, apperrors.ErrorTypeUpstreamTimeout) || apperrors.IsType(err, apperrors.ErrorTypeUpstreamUnavailable)
}

func denseOnly(results []ChannelResult) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(results))
	for rank, res := range results {
		out = append(out, ScoredChunk{
			ChunkID: res.ChunkID, DocumentID: res.DocumentID, DocumentTitle: res.DocumentTitle,
			ChunkIndex: res.ChunkIndex, Content: res.Content,
			Score:  rrfScore(rank, 60),
			Source: SourceDense,
		})
	}
	return out
}

// fuse combines dense and sparse rankings with Reciprocal Rank Fusion:
// score(c) = sum(1 / (k + rank_i(c))) over the lists c appears in (spec
// §4.5, "Fusion").
func fuse(dense, sparse []ChannelResult, k int) []ScoredChunk {
	type acc struct {
		result ChannelResult
		score  float64
		dense  bool
		sparseHit bool
	}
	byID := map[string]*acc{}
	order := []string{}

	for rank, res := range dense {
		a := &acc{result: res, dense: true}
		a.score += rrfScore(rank, k)
		byID[res.ChunkID] = a
		order = append(order, res.ChunkID)
	}
	for rank, res := range sparse {
		if a, ok := byID[res.ChunkID]; ok {
			a.score += rrfScore(rank, k)
			a.sparseHit = true
		} else {
			a := &acc{result: res, sparseHit: true}
			a.score += rrfScore(rank, k)
			byID[res.ChunkID] = a
			order = append(order, res.ChunkID)
		}
	}

	out := make([]ScoredChunk, 0, len(order))
	for _, id := range order {
		a := byID[id]
		source := SourceDense
		switch {
		case a.dense && a.sparseHit:
			source = SourceBoth
		case a.sparseHit:
			source = SourceSparse
		}
		out = append(out, ScoredChunk{
			ChunkID: a.result.ChunkID, DocumentID: a.result.DocumentID, DocumentTitle: a.result.DocumentTitle,
			ChunkIndex: a.result.ChunkIndex, Content: a.result.Content,
			Score: a.score, Source: source,
		})
	}

	sortFused(out)
	return out
}

func rrfScore(rank, k int) float64 {
	return 1.0 / float64(k+rank+1)
}

// sortFused orders strictly by fused score descending, ties broken by
// (document_id, chunk_index) for determinism (spec §4.5).
func sortFused(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
}

func truncate(chunks []ScoredChunk, topK int) []ScoredChunk {
	if len(chunks) > topK {
		return chunks[:topK]
	}
	return chunks
}
