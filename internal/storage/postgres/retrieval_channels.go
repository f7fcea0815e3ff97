package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/retrieval"
)

// DenseChannel implements retrieval.DenseChannel with pgvector's
// cosine-distance ANN index (spec §4.5, "Dense channel").
type DenseChannel struct {
	pool *pgxpool.Pool
}

// NewDenseChannel constructs a DenseChannel.
func NewDenseChannel(store *Store) *DenseChannel {
	return &DenseChannel{pool: store.Pool}
}

func (c *DenseChannel) Search(ctx context.Context, workspaceID string, queryEmbedding []float32, fetchK int) ([]retrieval.ChannelResult, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT ch.id, ch.document_id, d.title, ch.chunk_index, ch.content
		FROM chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE d.workspace_id = $1 AND d.deleted_at IS NULL AND d.status = 'READY'
		ORDER BY ch.embedding <=> $2
		LIMIT $3`,
		workspaceID, pgvector.NewVector(queryEmbedding), fetchK)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "dense retrieval query failed")
	}
	defer rows.Close()
	return scanChannelResults(rows)
}

// SparseChannel implements retrieval.SparseChannel with Postgres full-text
// search (spec §4.5, "Sparse channel").
type SparseChannel struct {
	pool *pgxpool.Pool
}

// NewSparseChannel constructs a SparseChannel.
func NewSparseChannel(store *Store) *SparseChannel {
	return &SparseChannel{pool: store.Pool}
}

func (c *SparseChannel) Search(ctx context.Context, workspaceID, language, query string, fetchK int) ([]retrieval.ChannelResult, error) {
	if language == "" {
		language = "english"
	}
	rows, err := c.pool.Query(ctx, `
		SELECT ch.id, ch.document_id, d.title, ch.chunk_index, ch.content
		FROM chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE d.workspace_id = $1 AND d.deleted_at IS NULL AND d.status = 'READY'
		  AND to_tsvector($2::regconfig, ch.content) @@ plainto_tsquery($2::regconfig, $3)
		ORDER BY ts_rank(to_tsvector($2::regconfig, ch.content), plainto_tsquery($2::regconfig, $3)) DESC
		LIMIT $4`,
		workspaceID, language, query, fetchK)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "sparse retrieval query failed")
	}
	defer rows.Close()
	return scanChannelResults(rows)
}

type channelRowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanChannelResults(rows channelRowScanner) ([]retrieval.ChannelResult, error) {
	var out []retrieval.ChannelResult
	for rows.Next() {
		var res retrieval.ChannelResult
		if err := rows.Scan(&res.ChunkID, &res.DocumentID, &res.DocumentTitle, &res.ChunkIndex, &res.Content); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to scan retrieval row")
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
