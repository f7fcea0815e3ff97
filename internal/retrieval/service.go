package retrieval

import (
	"context"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/policy"
	"github.com/SaintWyss/ragcore/internal/ports"
)

// WorkspaceAuthorizer authorizes a read against a workspace, mapping an
// unauthorized caller to NotFound (spec §4.1).
type WorkspaceAuthorizer interface {
	AuthorizeRead(ctx context.Context, requester policy.Principal, workspaceID string) error
}

// QueryRequest carries the parameters of a plain (non-generative)
// retrieval call (spec §6.1, `POST /v1/workspaces/{w}/query`).
type QueryRequest struct {
	WorkspaceID string
	Requester   policy.Principal
	Query       string
	TopK        int
}

// Service adapts the Retriever into the `/query` HTTP use case: it
// authorizes the caller, embeds the query text, and runs the hybrid
// retrieval pipeline, without any of the Answer Generator's prompt
// assembly or LLM invocation.
type Service struct {
	authz         WorkspaceAuthorizer
	retriever     *Retriever
	embedder      ports.EmbeddingPort
	hybridEnabled bool
	language      string
	rrfK          int
}

// NewService constructs a Service.
func NewService(authz WorkspaceAuthorizer, retriever *Retriever, embedder ports.EmbeddingPort, hybridEnabled bool, language string, rrfK int) *Service {
	return &Service{authz: authz, retriever: retriever, embedder: embedder, hybridEnabled: hybridEnabled, language: language, rrfK: rrfK}
}

// Query runs the authorized, embedded retrieval pipeline for req.
func (s *Service) Query(ctx context.Context, req QueryRequest) ([]ScoredChunk, error) {
	if err := s.authz.AuthorizeRead(ctx, req.Requester, req.WorkspaceID); err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, apperrors.NewValidationError("query is required")
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to embed query")
	}
	if len(vectors) != 1 {
		return nil, apperrors.New(apperrors.ErrorTypeUpstreamError, "embedding provider returned an unexpected vector count for the query")
	}

	return s.retriever.Retrieve(ctx, Options{
		WorkspaceID:    req.WorkspaceID,
		Query:          req.Query,
		QueryEmbedding: vectors[0],
		TopK:           req.TopK,
		HybridEnabled:  s.hybridEnabled,
		Language:       s.language,
		RRFK:           s.rrfK,
	})
}
