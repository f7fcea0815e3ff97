// Package answer implements the Answer Generator (spec §4.7):
// prompt-injection screening, prompt assembly from a versioned
// template, and both buffered and streaming invocation of the language
// model, sharing the same retrieval/rerank/context path.
package answer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/obslog"
	otelobs "github.com/SaintWyss/ragcore/internal/observability/otel"
	"github.com/SaintWyss/ragcore/internal/policy"
	"github.com/SaintWyss/ragcore/internal/ports"
	"github.com/SaintWyss/ragcore/internal/rerank"
	"github.com/SaintWyss/ragcore/internal/retrieval"
)

// Counters tracks the generator's counters (spec §4.7).
type Counters interface {
	IncPolicyRefusal()
	IncAnswerWithoutSources()
}

// AuditSink records the versioned prompt template used for an answer
// (spec §9, "Prompt template").
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// WorkspaceAuthorizer authorizes a read against a workspace, mapping an
// unauthorized caller to NotFound (spec §4.1).
type WorkspaceAuthorizer interface {
	AuthorizeRead(ctx context.Context, requester policy.Principal, workspaceID string) error
}

// Citation is a single source reference returned alongside an answer
// (spec §4.6, "Context builder"; spec §8, P5).
type Citation struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	ChunkIndex    int
	Marker        string
}

// Result is the outcome of a buffered Ask call.
type Result struct {
	Answer          string
	Citations       []Citation
	TemplateVersion string
	Refused         bool
	RefusalReason   string
}

// Request carries the parameters common to Ask and AskStream.
type Request struct {
	WorkspaceID string
	Requester   policy.Principal
	Query       string
	TopK        int
}

// Generator is the Answer Generator component (C7).
type Generator struct {
	authz     WorkspaceAuthorizer
	retriever *retrieval.Retriever
	reranker  *rerank.Reranker
	embedder  ports.EmbeddingPort
	llm       ports.LLMPort
	template  PromptTemplate
	audit     AuditSink
	counters  Counters
	logger    *zap.Logger
	idGen     func() string
	now       func() time.Time

	maxContextChars int
	hybridEnabled   bool
	language        string
	rrfK            int
	noContextAnswer string

	maxStreamEvents  int
	streamTimeout    time.Duration
}

// Config bundles Generator tuning knobs drawn from process configuration
// (spec §6.4).
type Config struct {
	MaxContextChars int
	HybridEnabled   bool
	Language        string
	RRFK            int
	MaxStreamEvents int
	StreamTimeout   time.Duration
}

// New constructs a Generator.
func New(authz WorkspaceAuthorizer, retriever *retrieval.Retriever, reranker *rerank.Reranker, embedder ports.EmbeddingPort, llm ports.LLMPort, template PromptTemplate, audit AuditSink, counters Counters, logger *zap.Logger, idGen func() string, now func() time.Time, cfg Config) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idGen == nil {
		idGen = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	if cfg.MaxStreamEvents <= 0 {
		cfg.MaxStreamEvents = 4096
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 2 * time.Minute
	}
	return &Generator{
		authz: authz, retriever: retriever, reranker: reranker, embedder: embedder, llm: llm,
		template: template, audit: audit, counters: counters, logger: logger,
		idGen: idGen, now: now,
		maxContextChars: cfg.MaxContextChars, hybridEnabled: cfg.HybridEnabled,
		language: cfg.Language, rrfK: cfg.RRFK, noContextAnswer: template.NoContextAnswer,
		maxStreamEvents: cfg.MaxStreamEvents, streamTimeout: cfg.StreamTimeout,
	}
}

// Ask runs the buffered generation path (spec §4.7, "Buffered
// generation"). A suspicious query is refused before any retrieval
// happens; a workspace with zero READY documents returns the canned
// no-context answer without calling the LLM.
func (g *Generator) Ask(ctx context.Context, req Request) (Result, error) {
	if err := g.authz.AuthorizeRead(ctx, req.Requester, req.WorkspaceID); err != nil {
		return Result{}, err
	}

	if inj := DetectInjection(req.Query); inj.Suspicious {
		if g.counters != nil {
			g.counters.IncPolicyRefusal()
		}
		g.auditBestEffort(ctx, "answer.policy_refusal", req.Requester.ID, req.WorkspaceID, map[string]interface{}{"reason": inj.Reason})
		return Result{Refused: true, RefusalReason: inj.Reason, TemplateVersion: g.template.Version}, nil
	}

	built, err := g.retrieveAndBuildContext(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if len(built.context.Included) == 0 {
		if g.counters != nil {
			g.counters.IncAnswerWithoutSources()
		}
		return Result{Answer: g.noContextAnswer, TemplateVersion: g.template.Version}, nil
	}

	systemPrompt, userPrompt := g.template.Assemble(built.context.Text, req.Query)
	genResult, err := g.generate(ctx, req.WorkspaceID, systemPrompt, userPrompt)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "language model generation failed")
	}

	g.auditBestEffort(ctx, "answer.generate", req.Requester.ID, req.WorkspaceID, map[string]interface{}{
		"template_version": g.template.Version,
		"source_count":     len(built.context.Included),
	})

	return Result{
		Answer:          genResult.Text,
		Citations:       citationsFrom(built.context.Included),
		TemplateVersion: g.template.Version,
	}, nil
}

type builtContext struct {
	context rerank.Context
}

func (g *Generator) generate(ctx context.Context, workspaceID, systemPrompt, userPrompt string) (ports.GenerateResult, error) {
	ctx, span := otelobs.StartSpan(ctx, "answer.Generate", attribute.String("workspace_id", workspaceID))
	defer span.End()

	result, err := g.llm.Generate(ctx, ports.GenerateRequest{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if err != nil {
		otelobs.RecordError(span, err)
	}
	return result, err
}

func (g *Generator) retrieveAndBuildContext(ctx context.Context, req Request) (builtContext, error) {
	vectors, err := g.embedder.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return builtContext{}, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to embed query")
	}
	if len(vectors) != 1 {
		return builtContext{}, apperrors.New(apperrors.ErrorTypeUpstreamError, "embedding provider returned an unexpected vector count for the query")
	}
	queryEmbedding := vectors[0]

	scored, err := g.retriever.Retrieve(ctx, retrieval.Options{
		WorkspaceID: req.WorkspaceID, Query: req.Query, QueryEmbedding: queryEmbedding,
		TopK: req.TopK, HybridEnabled: g.hybridEnabled, Language: g.language, RRFK: g.rrfK,
	})
	if err != nil {
		return builtContext{}, err
	}

	reranked := scored
	if g.reranker != nil {
		reranked = g.reranker.Rerank(ctx, req.Query, scored, nil)
	}

	return builtContext{context: rerank.BuildContext(reranked, g.maxContextChars)}, nil
}

func citationsFrom(included []rerank.ContextChunk) []Citation {
	out := make([]Citation, len(included))
	for i, c := range included {
		out[i] = Citation{
			ChunkID: c.ChunkID, DocumentID: c.DocumentID, DocumentTitle: c.DocumentTitle,
			ChunkIndex: c.ChunkIndex, Marker: c.Marker,
		}
	}
	return out
}

func (g *Generator) auditBestEffort(ctx context.Context, action, actor, targetID string, metadata map[string]interface{}) {
	if g.audit == nil {
		return
	}
	event := domain.AuditEvent{ID: g.idGen(), Actor: actor, Action: action, TargetID: targetID, Metadata: metadata, CreatedAt: g.now()}
	if err := g.audit.Record(ctx, event); err != nil {
		g.logger.Warn("failed to record audit event", obslog.NewFields().Operation(action).Error(err).Zap()...)
	}
}
