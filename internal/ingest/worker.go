// Package ingest implements the Ingestion Pipeline worker (spec §4.4):
// claim, fetch, extract, chunk, embed in batches, and persist atomically
// per document, with the size guards, retry discipline, and
// mid-processing cancellation the spec requires.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/answer"
	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/document"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/ingest/chunker"
	"github.com/SaintWyss/ragcore/internal/obslog"
	"github.com/SaintWyss/ragcore/internal/ports"
	"github.com/SaintWyss/ragcore/internal/resilience"
)

// ChunkWriter persists the chunk set produced for a single document and
// marks it READY in the same transaction (spec §4.4 step 7, I-C2).
type ChunkWriter interface {
	Persist(ctx context.Context, documentID string, chunks []domain.Chunk, metadata map[string]interface{}) error
}

// Counters tracks the worker's failure and injection counters.
type Counters interface {
	IncIngestionFailure()
	IncInjectionDetected()
}

// Limits bounds the worker's binary fetch (spec §4.4 step 2).
type Limits struct {
	MaxDocumentBytes int64
}

// BatchConfig tunes the embedding batching and retry policy (spec §4.4
// step 6).
type BatchConfig struct {
	TargetBatchSize int
	RetryPolicy     resilience.RetryPolicy
	JobTimeout      time.Duration
}

// Worker processes one ingestion job at a time to completion (spec
// §4.4). Multiple Workers may run concurrently across different jobs;
// the CAS on document status prevents two workers from claiming the
// same document.
type Worker struct {
	documents   document.Repository
	objects     ports.ObjectStorePort
	extractor   ports.TextExtractorPort
	embedder    ports.EmbeddingPort
	chunks      ChunkWriter
	counters    Counters
	logger      *zap.Logger
	limits      Limits
	batch       BatchConfig
	idGen       func() string
}

// New constructs a Worker.
func New(documents document.Repository, objects ports.ObjectStorePort, extractor ports.TextExtractorPort, embedder ports.EmbeddingPort, chunks ChunkWriter, counters Counters, logger *zap.Logger, idGen func() string, limits Limits, batch BatchConfig) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch.TargetBatchSize <= 0 {
		batch.TargetBatchSize = 16
	}
	if batch.JobTimeout <= 0 {
		batch.JobTimeout = 10 * time.Minute
	}
	if batch.RetryPolicy.MaxAttempts == 0 {
		batch.RetryPolicy = resilience.DefaultRetryPolicy
	}
	return &Worker{
		documents: documents, objects: objects, extractor: extractor, embedder: embedder,
		chunks: chunks, counters: counters, logger: logger, idGen: idGen, limits: limits, batch: batch,
	}
}

// ProcessJob runs the full ingestion sequence for job (spec §4.4,
// "Sequence per job"). It is idempotent: if the document was already
// claimed by another worker, it returns nil without side effects.
func (w *Worker) ProcessJob(ctx context.Context, job ports.Job) error {
	ctx, cancel := context.WithTimeout(ctx, w.batch.JobTimeout)
	defer cancel()

	claimed, err := w.documents.ClaimForProcessing(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	doc, err := w.documents.Get(ctx, job.WorkspaceID, job.DocumentID)
	if err != nil {
		return err
	}

	if err := w.runPipeline(ctx, doc); err != nil {
		sanitized := sanitize(err)
		w.logger.Warn("ingestion job failed", obslog.DocumentFields("ingest", doc.ID).Error(err).Zap()...)
		if w.counters != nil {
			w.counters.IncIngestionFailure()
		}
		if markErr := w.documents.MarkFailed(ctx, doc.ID, sanitized); markErr != nil {
			return markErr
		}
		return nil
	}
	return nil
}

func (w *Worker) runPipeline(ctx context.Context, doc domain.Document) error {
	if cancelled, cancelErr := w.abortIfDeleted(ctx, doc); cancelled {
		return cancelErr
	}

	text, err := w.fetchAndExtract(ctx, doc)
	if err != nil {
		return err
	}

	if cancelled, cancelErr := w.abortIfDeleted(ctx, doc); cancelled {
		return cancelErr
	}

	injection := answer.DetectInjection(text)
	metadata := map[string]interface{}{}
	if injection.Suspicious {
		metadata["injection_detected"] = true
		metadata["injection_reason"] = injection.Reason
		if w.counters != nil {
			w.counters.IncInjectionDetected()
		}
	}

	textChunks := chunker.Split(text)
	if len(textChunks) == 0 {
		metadata["empty_document"] = true
		if err := w.persist(ctx, doc.ID, nil, metadata); err != nil {
			return err
		}
		return nil
	}

	embeddings, err := w.embedAll(ctx, textChunks)
	if err != nil {
		return err
	}

	domainChunks := make([]domain.Chunk, len(textChunks))
	for i, c := range textChunks {
		domainChunks[i] = domain.Chunk{
			ID: w.idGen(), DocumentID: doc.ID, ChunkIndex: c.Index, Content: c.Content, Embedding: embeddings[i],
		}
	}

	return w.persist(ctx, doc.ID, domainChunks, metadata)
}

// abortIfDeleted implements spec §4.4 "Cancellation": a soft-deleted
// document encountered mid-processing aborts at the next checkpoint,
// marks FAILED with reason "deleted", and purges any partial chunks.
func (w *Worker) abortIfDeleted(ctx context.Context, doc domain.Document) (bool, error) {
	current, err := w.documents.Get(ctx, doc.WorkspaceID, doc.ID)
	if err != nil {
		return true, err
	}
	if !current.IsDeleted() {
		return false, nil
	}
	if err := w.documents.DeleteChunks(ctx, doc.ID); err != nil {
		return true, err
	}
	if err := w.documents.MarkFailed(ctx, doc.ID, "deleted"); err != nil {
		return true, err
	}
	return true, nil
}

// fetchAndExtract streams the binary from storage with an upper size
// guard (spec §4.4 step 2) and extracts text per MIME type (step 3).
func (w *Worker) fetchAndExtract(ctx context.Context, doc domain.Document) (string, error) {
	r, err := w.objects.GetObjectStream(ctx, doc.StorageKey)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to fetch document binary")
	}
	defer r.Close()

	guarded := &limitedReader{r: r, limit: w.limits.MaxDocumentBytes}
	text, err := w.extractor.Extract(ctx, guarded, doc.MimeType)
	if guarded.exceeded {
		return "", apperrors.New(apperrors.ErrorTypePayloadTooLarge, "document exceeds the maximum ingestion size")
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "text extraction failed")
	}
	return text, nil
}

// limitedReader counts the bytes read from r; once the total passes
// limit it sets exceeded and reports io.EOF, so the guard can tell "hit
// exactly limit" apart from "exceeded limit" without buffering the whole
// object in memory. A single Read is not capped, so the read that passes
// limit still returns all of its bytes.
type limitedReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.r.Read(p)
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		l.exceeded = true
		return n, io.EOF
	}
	return n, err
}

// embedAll computes embeddings in batches of TargetBatchSize, degrading
// to batches of 1 after a batch fails even with retries exhausted, and
// retrying each batch call with exponential backoff and full jitter on
// transient errors (spec §4.4 step 6).
func (w *Worker) embedAll(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	batchSize := w.batch.TargetBatchSize
	degraded := false

	for start := 0; start < len(chunks); {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Content
		}

		var result [][]float32
		err := resilience.Retry(ctx, w.batch.RetryPolicy, func(ctx context.Context) error {
			res, embedErr := w.embedder.EmbedBatch(ctx, texts)
			if embedErr != nil {
				return embedErr
			}
			result = res
			return nil
		})

		if err != nil {
			if batchSize > 1 && !degraded {
				batchSize = 1
				degraded = true
				continue
			}
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "embedding batch failed")
		}
		if len(result) != len(texts) {
			return nil, apperrors.Newf(apperrors.ErrorTypeUpstreamError, "embedding provider returned %d vectors for %d inputs", len(result), len(texts))
		}

		out = append(out, result...)
		start = end
	}
	return out, nil
}

// persist atomically replaces the document's chunk set and marks it
// READY (spec §4.4 step 7, I-C2).
func (w *Worker) persist(ctx context.Context, documentID string, chunks []domain.Chunk, metadata map[string]interface{}) error {
	if err := w.chunks.Persist(ctx, documentID, chunks, metadata); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to persist chunks")
	}
	return nil
}

// sanitize produces a bounded, detail-free error message safe to store
// in documents.error_message (spec §4.4 step 7, spec §7).
func sanitize(err error) string {
	msg := apperrors.SafeErrorMessage(err)
	const max = 500
	if len(msg) > max {
		return msg[:max]
	}
	if msg == "An unexpected error occurred" {
		return fmt.Sprintf("ingestion failed: %s", apperrors.GetType(err).Code())
	}
	return msg
}
