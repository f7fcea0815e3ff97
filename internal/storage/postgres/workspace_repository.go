package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/policy"
)

// WorkspaceRepository implements workspace.Repository against Postgres.
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository constructs a WorkspaceRepository.
func NewWorkspaceRepository(store *Store) *WorkspaceRepository {
	return &WorkspaceRepository{pool: store.Pool}
}

func (r *WorkspaceRepository) Create(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO workspaces (name, description, owner_user_id, visibility)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, owner_user_id, visibility, archived_at, created_at`,
		ws.Name, ws.Description, ws.OwnerUserID, ws.Visibility)
	return scanWorkspace(row)
}

func (r *WorkspaceRepository) Get(ctx context.Context, id string) (domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, owner_user_id, visibility, archived_at, created_at
		FROM workspaces WHERE id = $1`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Workspace{}, apperrors.NewNotFoundError("workspace")
	}
	return ws, err
}

func (r *WorkspaceRepository) ListVisible(ctx context.Context, principal policy.Principal, includeArchived bool, page, pageSize int) ([]domain.Workspace, error) {
	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx, `
		SELECT w.id, w.name, w.description, w.owner_user_id, w.visibility, w.archived_at, w.created_at
		FROM workspaces w
		LEFT JOIN workspace_acl acl ON acl.workspace_id = w.id AND acl.user_id = $1
		WHERE ($2 OR w.archived_at IS NULL)
		  AND ($3 OR w.owner_user_id = $1 OR w.visibility = 'ORG_READ' OR acl.user_id IS NOT NULL)
		ORDER BY w.created_at DESC
		LIMIT $4 OFFSET $5`,
		principal.ID, includeArchived, principal.IsAdmin(), pageSize, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to list workspaces")
	}
	defer rows.Close()

	var out []domain.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (r *WorkspaceRepository) Update(ctx context.Context, id string, name, description *string) (domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE workspaces
		SET name = COALESCE($2, name), description = COALESCE($3, description)
		WHERE id = $1
		RETURNING id, name, description, owner_user_id, visibility, archived_at, created_at`,
		id, name, description)
	return scanWorkspace(row)
}

func (r *WorkspaceRepository) SetArchived(ctx context.Context, id string, archived bool) (domain.Workspace, error) {
	var row pgx.Row
	if archived {
		row = r.pool.QueryRow(ctx, `
			UPDATE workspaces SET archived_at = now() WHERE id = $1
			RETURNING id, name, description, owner_user_id, visibility, archived_at, created_at`, id)
	} else {
		row = r.pool.QueryRow(ctx, `
			UPDATE workspaces SET archived_at = NULL WHERE id = $1
			RETURNING id, name, description, owner_user_id, visibility, archived_at, created_at`, id)
	}
	return scanWorkspace(row)
}

func (r *WorkspaceRepository) SetVisibility(ctx context.Context, id string, visibility domain.Visibility) (domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE workspaces SET visibility = $2 WHERE id = $1
		RETURNING id, name, description, owner_user_id, visibility, archived_at, created_at`,
		id, visibility)
	return scanWorkspace(row)
}

// ReplaceACL atomically swaps the full ACL membership of a workspace to
// exactly userIDs (spec §4.2, "Share"), reporting what changed.
func (r *WorkspaceRepository) ReplaceACL(ctx context.Context, workspaceID string, userIDs []string) (added, removed []string, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM workspaces WHERE id = $1 FOR UPDATE`, workspaceID); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to lock workspace")
	}

	existing := map[string]bool{}
	rows, err := tx.Query(ctx, `SELECT user_id FROM workspace_acl WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to read existing ACL")
	}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to scan ACL row")
		}
		existing[userID] = true
	}
	rows.Close()

	desired := map[string]bool{}
	for _, id := range userIDs {
		desired[id] = true
	}
	for id := range desired {
		if !existing[id] {
			added = append(added, id)
		}
	}
	for id := range existing {
		if !desired[id] {
			removed = append(removed, id)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workspace_acl WHERE workspace_id = $1`, workspaceID); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to clear ACL")
	}
	for _, id := range userIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO workspace_acl (workspace_id, user_id) VALUES ($1, $2)`, workspaceID, id); err != nil {
			return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to insert ACL entry")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to commit ACL replacement")
	}
	return added, removed, nil
}

func (r *WorkspaceRepository) ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM workspace_acl WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to read ACL")
	}
	defer rows.Close()

	members := map[string]bool{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to scan ACL row")
		}
		members[userID] = true
	}
	return members, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkspace(row rowScanner) (domain.Workspace, error) {
	var ws domain.Workspace
	err := row.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerUserID, &ws.Visibility, &ws.ArchivedAt, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Workspace{}, err
		}
		return domain.Workspace{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to scan workspace row")
	}
	return ws, nil
}
