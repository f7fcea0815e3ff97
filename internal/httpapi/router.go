package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/answer"
	"github.com/SaintWyss/ragcore/internal/document"
	"github.com/SaintWyss/ragcore/internal/retrieval"
	"github.com/SaintWyss/ragcore/internal/workspace"
)

// Server holds every collaborator an HTTP handler needs; it is built once
// in internal/container and has no package-level mutable state.
type Server struct {
	logger        *zap.Logger
	workspaces    *workspace.Registry
	documents     *document.Manager
	generator     *answer.Generator
	queryService  *retrieval.Service
	readyCheckers map[string]Pinger
	maxUploadBytes int64

	corsAllowedOrigins []string
	metricsRequireAuth bool
}

// Config bundles the tuning knobs router construction needs beyond the
// wired components themselves.
type Config struct {
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	MetricsRequireAuth bool
}

// NewServer constructs a Server. readyCheckers maps a dependency name
// (e.g. "postgres", "redis") to a liveness probe consulted by /readyz.
func NewServer(logger *zap.Logger, workspaces *workspace.Registry, documents *document.Manager, generator *answer.Generator, queryService *retrieval.Service, readyCheckers map[string]Pinger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 * 1024 * 1024
	}
	return &Server{
		logger: logger, workspaces: workspaces, documents: documents, generator: generator,
		queryService: queryService, readyCheckers: readyCheckers, maxUploadBytes: cfg.MaxUploadBytes,
		corsAllowedOrigins: cfg.CORSAllowedOrigins, metricsRequireAuth: cfg.MetricsRequireAuth,
	}
}

// Routes builds the full route table of spec §6.1 on a chi.Router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-Principal-Id", "X-Principal-Role", "X-Principal-Active"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Group(func(r chi.Router) {
		if s.metricsRequireAuth {
			r.Use(requireAuth(s.logger))
		}
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/v1/workspaces", func(r chi.Router) {
		r.Use(requireAuth(s.logger))

		r.Post("/", s.handleCreateWorkspace)
		r.Get("/", s.handleListWorkspaces)

		r.Route("/{workspaceID}", func(r chi.Router) {
			r.Get("/", s.handleGetWorkspace)
			r.Patch("/", s.handleUpdateWorkspace)
			r.Delete("/", s.handleArchiveWorkspace)
			r.Post("/publish", s.handlePublishWorkspace)
			r.Post("/share", s.handleShareWorkspace)

			r.Post("/documents/upload", s.handleUploadDocument)
			r.Post("/ingest/text", s.handleIngestText)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{documentID}", s.handleGetDocument)
			r.Post("/documents/{documentID}/reprocess", s.handleReprocessDocument)
			r.Delete("/documents/{documentID}", s.handleDeleteDocument)

			r.Post("/query", s.handleQuery)
			r.Post("/ask", s.handleAsk)
			r.Post("/ask/stream", s.handleAskStream)
		})
	})

	return r
}
