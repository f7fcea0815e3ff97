// Package ports declares the abstract boundaries (spec §1, §6) through
// which the core depends on Postgres, Redis, the object store, and the
// embedding/LLM vendors. Concrete adapters live under their own
// top-level packages and are wired together in internal/container.
package ports

import (
	"context"
	"io"
	"time"
)

// EmbeddingPort computes dense vector embeddings for a batch of texts,
// all in a single call, preserving input order in the result.
type EmbeddingPort interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMPort is the language-model port used by the answer generator, with
// a buffered (Generate) and a streaming (GenerateStream) call (spec
// §4.7).
type LLMPort interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	GenerateStream(ctx context.Context, req GenerateRequest) (TokenStream, error)
}

// GenerateRequest carries an assembled prompt to the language model.
type GenerateRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// GenerateResult is a buffered language-model response.
type GenerateResult struct {
	Text         string
	FinishReason string
}

// TokenStream yields incremental text deltas from a streaming
// generation call. Recv returns io.EOF once the model signals
// completion. Close aborts the upstream call and releases resources;
// it is always safe to call, including after io.EOF.
type TokenStream interface {
	Recv(ctx context.Context) (string, error)
	Close() error
}

// RerankPort scores (query, candidate) pairs through a cross-encoder
// model, returning one score per candidate in input order (spec §4.6,
// MODEL mode).
type RerankPort interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// TextExtractorPort extracts plain text from a binary document
// according to its MIME type (spec §4.4 step 3).
type TextExtractorPort interface {
	Extract(ctx context.Context, r io.Reader, mimeType string) (string, error)
}

// ObjectStorePort is the binary store for document uploads.
type ObjectStorePort interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
}

// Job is a unit of ingestion work (spec §6.3).
type Job struct {
	DocumentID  string `json:"document_id"`
	WorkspaceID string `json:"workspace_id"`
	Attempt     int    `json:"attempt"`
}

// QueuePort is the FIFO job queue between the API (producer) and the
// worker (sole consumer).
type QueuePort interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
}
