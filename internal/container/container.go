// Package container assembles every adapter and component into the
// wired object graph the process entry points run (spec §9, "no
// ambient singleton" — every dependency is constructed once here and
// passed down explicitly, never reached for through a package-level
// variable).
package container

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/answer"
	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/audit"
	"github.com/SaintWyss/ragcore/internal/config"
	"github.com/SaintWyss/ragcore/internal/document"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/embedding/bedrock"
	"github.com/SaintWyss/ragcore/internal/embedding/fakeembed"
	"github.com/SaintWyss/ragcore/internal/httpapi"
	"github.com/SaintWyss/ragcore/internal/ingest"
	"github.com/SaintWyss/ragcore/internal/ingest/extractor"
	llmanthropic "github.com/SaintWyss/ragcore/internal/llm/anthropic"
	llmbedrock "github.com/SaintWyss/ragcore/internal/llm/bedrock"
	"github.com/SaintWyss/ragcore/internal/llm/fakellm"
	"github.com/SaintWyss/ragcore/internal/metrics"
	otelobs "github.com/SaintWyss/ragcore/internal/observability/otel"
	"github.com/SaintWyss/ragcore/internal/ports"
	"github.com/SaintWyss/ragcore/internal/queue/redisqueue"
	"github.com/SaintWyss/ragcore/internal/rerank"
	"github.com/SaintWyss/ragcore/internal/resilience"
	"github.com/SaintWyss/ragcore/internal/retrieval"
	"github.com/SaintWyss/ragcore/internal/storage/objectstore/s3"
	"github.com/SaintWyss/ragcore/internal/storage/postgres"
	"github.com/SaintWyss/ragcore/internal/workspace"
)

// Container holds every top-level component a process entry point
// drives. cmd/api reads the HTTP-facing fields; cmd/worker reads
// IngestWorker and Queue.
type Container struct {
	Logger  *zap.Logger
	Config  *config.Config
	Store   *postgres.Store
	Redis   redis.UniversalClient
	Metrics *metrics.Registry

	WorkspaceRegistry *workspace.Registry
	DocumentManager   *document.Manager
	QueryService      *retrieval.Service
	AnswerGenerator   *answer.Generator
	IngestWorker      *ingest.Worker
	Queue             ports.QueuePort

	HTTPServer    *httpapi.Server
	TraceProvider *otelobs.Provider
}

// Build constructs the full object graph from cfg. The caller owns the
// returned Container's lifetime and must call Close on shutdown.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	traceProvider, err := otelobs.InitTracer(ctx, otelobs.ConfigFromEnv("ragcore"))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	store, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.Queue.RedisURL)})
	queue := redisqueue.New(redisClient, "ragcore:ingest")

	objects, err := s3.New(ctx, s3.Config{
		EndpointURL: cfg.ObjectStore.EndpointURL, Bucket: cfg.ObjectStore.Bucket, Region: cfg.ObjectStore.Region,
		AccessKeyID: cfg.ObjectStore.AccessKeyID, SecretAccessKey: cfg.ObjectStore.SecretAccessKey, UsePathStyle: cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(promReg)

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}
	llm, err := buildLLM(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	auditStore := postgres.NewAuditStore(store)
	auditSink := audit.NewBufferedSink(auditStore, 1024, logger)

	wsRepo := postgres.NewWorkspaceRepository(store)
	userRepo := postgres.NewUserRepository(store)
	wsRegistry := workspace.New(wsRepo, userRepo, auditSink, logger, uuid.NewString, time.Now, cfg.Security.AllowSelfServiceWorkspaces)

	docRepo := postgres.NewDocumentRepository(store)
	docLookup := &workspaceLookupAdapter{repo: wsRepo}
	docManager := document.New(docRepo, docLookup, objects, queue, auditSink, metricsRegistry, logger, uuid.NewString, time.Now, document.Limits{MaxUploadBytes: cfg.Uploads.MaxUploadBytes})

	dense := postgres.NewDenseChannel(store)
	sparse := postgres.NewSparseChannel(store)
	retriever := retrieval.New(dense, sparse, metricsRegistry, logger)

	rerankMode := rerank.ModeHeuristic
	reranker := rerank.New(rerankMode, nil, metricsRegistry, logger, time.Now)

	queryService := retrieval.NewService(wsRegistry, retriever, embedder, cfg.Retrieval.EnableHybridSearch, firstOrDefault(cfg.Retrieval.FTSLanguageAllow, "english"), cfg.Retrieval.RRFK)

	template, err := answer.LoadTemplate("v1")
	if err != nil {
		return nil, fmt.Errorf("load prompt template: %w", err)
	}
	generator := answer.New(wsRegistry, retriever, reranker, embedder, llm, template, auditSink, metricsRegistry, logger, uuid.NewString, time.Now, answer.Config{
		MaxContextChars: cfg.Retrieval.MaxContextChars, HybridEnabled: cfg.Retrieval.EnableHybridSearch,
		Language: firstOrDefault(cfg.Retrieval.FTSLanguageAllow, "english"), RRFK: cfg.Retrieval.RRFK,
	})

	chunkWriter := postgres.NewChunkWriter(store)
	worker := ingest.New(docRepo, objects, extractor.New(), embedder, chunkWriter, metricsRegistry, logger, uuid.NewString,
		ingest.Limits{MaxDocumentBytes: cfg.Uploads.MaxUploadBytes},
		ingest.BatchConfig{RetryPolicy: resilience.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay, MaxDelay: cfg.Retry.MaxDelay}},
	)

	readyCheckers := map[string]httpapi.Pinger{
		"postgres": store.Pool,
		"redis":    redisPinger{client: redisClient},
	}
	httpServer := httpapi.NewServer(logger, wsRegistry, docManager, generator, queryService, readyCheckers, httpapi.Config{
		MaxUploadBytes:     cfg.Uploads.MaxUploadBytes,
		MetricsRequireAuth: cfg.Security.MetricsRequireAuth,
	})

	return &Container{
		Logger: logger, Config: cfg, Store: store, Redis: redisClient, Metrics: metricsRegistry,
		WorkspaceRegistry: wsRegistry, DocumentManager: docManager, QueryService: queryService,
		AnswerGenerator: generator, IngestWorker: worker, Queue: queue,
		HTTPServer: httpServer, TraceProvider: traceProvider,
	}, nil
}

// Close releases, best-effort and in this order, the trace provider,
// the Redis client, and the database store. The audit BufferedSink is
// not closed, so events still pending in it are not flushed.
func (c *Container) Close(ctx context.Context) {
	if c.TraceProvider != nil {
		_ = c.TraceProvider.Shutdown(ctx)
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (ports.EmbeddingPort, error) {
	if cfg.Providers.FakeEmbeddings {
		return fakeembed.New(), nil
	}
	switch cfg.Providers.EmbeddingProviderKey {
	case "bedrock":
		client, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			return nil, err
		}
		return bedrock.New(client, cfg.Providers.BedrockEmbeddingModelID), nil
	default:
		return fakeembed.New(), nil
	}
}

func buildLLM(ctx context.Context, cfg *config.Config) (ports.LLMPort, error) {
	if cfg.Providers.FakeLLM {
		return fakellm.New(), nil
	}
	switch cfg.Providers.LLMProviderKey {
	case "bedrock":
		client, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			return nil, err
		}
		return llmbedrock.New(client, cfg.Providers.BedrockLLMModelID, 1024), nil
	case "anthropic":
		return llmanthropic.New(llmanthropic.Config{APIKey: cfg.Providers.AnthropicAPIKey, Model: cfg.Providers.AnthropicModel}), nil
	default:
		return fakellm.New(), nil
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// workspaceGetter is the subset of workspace.Repository a
// workspaceLookupAdapter needs; narrowed to an interface so the
// NotFound-masking logic can be unit tested without a live database.
type workspaceGetter interface {
	Get(ctx context.Context, id string) (domain.Workspace, error)
	ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error)
}

// workspaceLookupAdapter adapts workspace.Repository (error-returning
// Get) to document.WorkspaceLookup (bool-returning Get), so the
// document package does not need a dependency on workspace.Registry.
type workspaceLookupAdapter struct {
	repo workspaceGetter
}

func (a *workspaceLookupAdapter) Get(ctx context.Context, id string) (domain.Workspace, bool, error) {
	ws, err := a.repo.Get(ctx, id)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return domain.Workspace{}, false, nil
		}
		return domain.Workspace{}, false, err
	}
	return ws, true, nil
}

func (a *workspaceLookupAdapter) ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error) {
	return a.repo.ACLMembers(ctx, workspaceID)
}

// redisPinger adapts redis.UniversalClient to httpapi.Pinger.
type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func redisAddr(url string) string {
	if url == "" {
		return "localhost:6379"
	}
	return url
}

func firstOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}
