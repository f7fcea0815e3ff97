package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/document"
	"github.com/SaintWyss/ragcore/internal/domain"
)

// uniqueViolation is Postgres error code 23505.
const uniqueViolation = "23505"

// DocumentRepository implements document.Repository against Postgres.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a DocumentRepository.
func NewDocumentRepository(store *Store) *DocumentRepository {
	return &DocumentRepository{pool: store.Pool}
}

func (r *DocumentRepository) Insert(ctx context.Context, doc domain.Document) (domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (workspace_id, title, source, mime_type, storage_key, status, tags, content_hash, uploaded_by_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, workspace_id, title, source, mime_type, storage_key, status, error_message, tags, content_hash, uploaded_by_user_id, metadata, created_at, deleted_at`,
		doc.WorkspaceID, doc.Title, doc.Source, doc.MimeType, doc.StorageKey, doc.Status, doc.Tags, doc.ContentHash, doc.UploadedByUserID, doc.Metadata)

	out, err := scanDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Document{}, apperrors.NewConflictError("a document with this content already exists in the workspace")
		}
		return domain.Document{}, err
	}
	return out, nil
}

func (r *DocumentRepository) Get(ctx context.Context, workspaceID, id string) (domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, title, source, mime_type, storage_key, status, error_message, tags, content_hash, uploaded_by_user_id, metadata, created_at, deleted_at
		FROM documents WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, apperrors.NewNotFoundError("document")
	}
	return doc, err
}

func (r *DocumentRepository) FindByContentHash(ctx context.Context, workspaceID, contentHash string) (domain.Document, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, title, source, mime_type, storage_key, status, error_message, tags, content_hash, uploaded_by_user_id, metadata, created_at, deleted_at
		FROM documents WHERE workspace_id = $1 AND content_hash = $2`, workspaceID, contentHash)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

func (r *DocumentRepository) List(ctx context.Context, workspaceID string, filter document.ListFilter) ([]domain.Document, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, title, source, mime_type, storage_key, status, error_message, tags, content_hash, uploaded_by_user_id, metadata, created_at, deleted_at
		FROM documents
		WHERE workspace_id = $1
		  AND ($2 OR deleted_at IS NULL)
		  AND ($3 = '' OR status = $3)
		  AND ($4 = '' OR $4 = ANY(tags))
		  AND ($5 = '' OR title ILIKE '%' || $5 || '%')
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7`,
		workspaceID, filter.IncludeSoftDeleted, string(filter.Status), filter.Tag, filter.Query, pageSize, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to list documents")
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// ClaimForProcessing performs the CAS of spec §4.4/§9: only a PENDING
// document transitions to PROCESSING, and the boolean return tells the
// caller whether it won the race.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = 'PROCESSING'
		WHERE id = $1 AND status = 'PENDING' AND deleted_at IS NULL`, id)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to claim document")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepository) MarkReady(ctx context.Context, id string, metadata map[string]interface{}) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = 'READY', error_message = '', metadata = metadata || $2
		WHERE id = $1`, id, metadata)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to mark document ready")
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, sanitizedMessage string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = 'FAILED', error_message = $2 WHERE id = $1`, id, sanitizedMessage)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to mark document failed")
	}
	return nil
}

func (r *DocumentRepository) DeleteChunks(ctx context.Context, documentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to purge chunks")
	}
	return nil
}

// ReprocessAtomic purges id's chunks and resets it to PENDING inside a
// single transaction (spec §4.3, "Reprocess"; domain.Chunk's I-C2).
// Only a READY or FAILED document transitions; a CAS miss reports
// CONFLICT_STATE and rolls back the chunk purge.
func (r *DocumentRepository) ReprocessAtomic(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to begin reprocess transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, id); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to purge chunks")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents SET status = 'PENDING', error_message = ''
		WHERE id = $1 AND status IN ('READY', 'FAILED') AND deleted_at IS NULL`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to reset document for reprocess")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConflictStateError("document is not in a reprocessable state")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to commit reprocess transaction")
	}
	return nil
}

// DeleteAtomic purges id's chunks and soft-deletes it inside a single
// transaction (spec §4.3, "Soft delete"; domain.Chunk's I-C2).
func (r *DocumentRepository) DeleteAtomic(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to begin delete transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, id); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to purge chunks")
	}
	if _, err := tx.Exec(ctx, `UPDATE documents SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to soft delete document")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to commit delete transaction")
	}
	return nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.WorkspaceID, &doc.Title, &doc.Source, &doc.MimeType, &doc.StorageKey,
		&doc.Status, &doc.ErrorMessage, &doc.Tags, &doc.ContentHash, &doc.UploadedByUserID, &doc.Metadata,
		&doc.CreatedAt, &doc.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, err
		}
		return domain.Document{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to scan document row")
	}
	return doc, nil
}
