package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
)

// ChunkWriter implements ingest.ChunkWriter against Postgres: it
// deletes any pre-existing chunk set, inserts the new one, and marks
// the owning document READY, all inside a single transaction (spec
// §4.4 step 7, I-C2).
type ChunkWriter struct {
	pool *pgxpool.Pool
}

// NewChunkWriter constructs a ChunkWriter.
func NewChunkWriter(store *Store) *ChunkWriter {
	return &ChunkWriter{pool: store.Pool}
}

func (w *ChunkWriter) Persist(ctx context.Context, documentID string, chunks []domain.Chunk, metadata map[string]interface{}) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to begin chunk persist transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to clear existing chunks")
	}

	rows := make([][]interface{}, len(chunks))
	for i, c := range chunks {
		rows[i] = []interface{}{c.ID, documentID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding), c.Metadata, c.ContentHash}
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"chunks"},
			[]string{"id", "document_id", "chunk_index", "content", "embedding", "metadata", "content_hash"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to insert chunks")
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents SET status = 'READY', error_message = '', metadata = metadata || $2
		WHERE id = $1`, documentID, metadata); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to mark document ready")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to commit chunk persist transaction")
	}
	return nil
}
