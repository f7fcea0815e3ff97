package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
)

// AuditStore implements audit.Store as an append-only insert into
// audit_events (spec §3, "Audit Event"), over database/sql so it can be
// exercised with go-sqlmock independently of the pgx connection pool
// the vector-aware repositories use.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore constructs an AuditStore.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{db: store.DB}
}

// NewAuditStoreForTest builds an AuditStore against any *sql.DB,
// including a go-sqlmock-backed one.
func NewAuditStoreForTest(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(ctx context.Context, event domain.AuditEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode audit metadata")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (actor, action, target_id, metadata)
		VALUES ($1, $2, $3, $4)`,
		event.Actor, event.Action, event.TargetID, metadata)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to insert audit event")
	}
	return nil
}
