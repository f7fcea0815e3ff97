// Package workspace implements the Workspace Registry (spec §4.2):
// creation, listing, renaming, archiving, publishing, and ACL sharing.
package workspace

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/obslog"
	"github.com/SaintWyss/ragcore/internal/policy"
)

// UserLookup validates that Share's ACL targets are real, active
// accounts (spec §4.2, "Share": replace the ACL "after validating each
// [user id] exists and is active"). The returned set contains exactly
// the ids of userIDs that are active users; any id absent from it is
// either unknown or inactive.
type UserLookup interface {
	ActiveUserIDs(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// Repository is the persistence port the Registry depends on. A single
// mutating call runs inside one transaction at the adapter's discretion;
// Share additionally takes a row lock on the workspace before replacing
// the ACL set (spec §4.2, "Ordering & concurrency").
type Repository interface {
	Create(ctx context.Context, ws domain.Workspace) (domain.Workspace, error)
	Get(ctx context.Context, id string) (domain.Workspace, error)
	ListVisible(ctx context.Context, principal policy.Principal, includeArchived bool, page, pageSize int) ([]domain.Workspace, error)
	Update(ctx context.Context, id string, name, description *string) (domain.Workspace, error)
	SetArchived(ctx context.Context, id string, archived bool) (domain.Workspace, error)
	SetVisibility(ctx context.Context, id string, visibility domain.Visibility) (domain.Workspace, error)
	ReplaceACL(ctx context.Context, workspaceID string, userIDs []string) (added, removed []string, err error)
	ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error)
}

// AuditSink records a single append-only audit event (spec §3, "Audit
// Event").
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// Counters records policy refusals.
type Counters interface {
	IncPolicyRefusal()
}

// Registry is the Workspace Registry component (C2).
type Registry struct {
	repo     Repository
	users    UserLookup
	audit    AuditSink
	logger   *zap.Logger
	idGen    func() string
	now      func() time.Time
	allowSelfService bool
}

// New constructs a Registry. idGen generates new workspace identifiers
// (typically uuid.NewString); now is injectable for deterministic tests.
func New(repo Repository, users UserLookup, audit AuditSink, logger *zap.Logger, idGen func() string, now func() time.Time, allowSelfService bool) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{repo: repo, users: users, audit: audit, logger: logger, idGen: idGen, now: now, allowSelfService: allowSelfService}
}

// CreateInput carries the parameters of a create request.
type CreateInput struct {
	Name        string
	Description string
	OwnerUserID string
	Visibility  domain.Visibility
	Requester   policy.Principal
}

// Create provisions a new workspace. Only admins may choose an arbitrary
// owner; a non-admin may create a workspace owned by themselves only if
// self-service creation is enabled (spec §4.2).
func (r *Registry) Create(ctx context.Context, in CreateInput) (domain.Workspace, error) {
	if in.Name == "" {
		return domain.Workspace{}, apperrors.NewValidationError("name is required")
	}
	if !in.Requester.IsAdmin() {
		if !r.allowSelfService {
			return domain.Workspace{}, apperrors.NewAccessDeniedError("only admins may provision workspaces")
		}
		if in.OwnerUserID != "" && in.OwnerUserID != in.Requester.ID {
			return domain.Workspace{}, apperrors.NewAccessDeniedError("cannot create a workspace owned by another user")
		}
		in.OwnerUserID = in.Requester.ID
	}
	if in.OwnerUserID == "" {
		return domain.Workspace{}, apperrors.NewValidationError("owner_user_id is required")
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	ws := domain.Workspace{
		ID:          r.idGen(),
		Name:        in.Name,
		Description: in.Description,
		OwnerUserID: in.OwnerUserID,
		Visibility:  visibility,
		CreatedAt:   r.now(),
	}

	created, err := r.repo.Create(ctx, ws)
	if err != nil {
		return domain.Workspace{}, err
	}

	r.auditBestEffort(ctx, "workspace.create", in.Requester.ID, created.ID, map[string]interface{}{
		"name":       created.Name,
		"visibility": string(created.Visibility),
	})
	return created, nil
}

// Get fetches a single workspace, enforcing the read policy and masking
// unauthorized access as NotFound (spec §4.1).
func (r *Registry) Get(ctx context.Context, requester policy.Principal, id string) (domain.Workspace, error) {
	ws, err := r.repo.Get(ctx, id)
	if err != nil {
		return domain.Workspace{}, err
	}
	aclMembers, err := r.repo.ACLMembers(ctx, id)
	if err != nil {
		return domain.Workspace{}, err
	}
	if !policy.CanRead(requester, ws, aclMembers) {
		return domain.Workspace{}, apperrors.NewNotFoundError("workspace")
	}
	return ws, nil
}

// AuthorizeRead reports whether requester may read workspace id, masking
// both a denied and a missing workspace as NotFound (spec §4.1). It
// adapts the Registry to the answer package's WorkspaceAuthorizer port.
func (r *Registry) AuthorizeRead(ctx context.Context, requester policy.Principal, id string) error {
	_, err := r.Get(ctx, requester, id)
	return err
}

// ListVisible returns workspaces the principal may read, pushing the
// policy predicate into the repository's query (spec §4.2).
func (r *Registry) ListVisible(ctx context.Context, requester policy.Principal, includeArchived bool, page, pageSize int) ([]domain.Workspace, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return r.repo.ListVisible(ctx, requester, includeArchived, page, pageSize)
}

// Rename updates a workspace's name and/or description.
func (r *Registry) Rename(ctx context.Context, requester policy.Principal, id string, name, description *string) (domain.Workspace, error) {
	ws, err := r.authorizeWrite(ctx, requester, id)
	if err != nil {
		return domain.Workspace{}, err
	}
	updated, err := r.repo.Update(ctx, ws.ID, name, description)
	if err != nil {
		return domain.Workspace{}, err
	}
	r.auditBestEffort(ctx, "workspace.update", requester.ID, id, map[string]interface{}{"name": name, "description": description})
	return updated, nil
}

// Archive sets archived_at; idempotent.
func (r *Registry) Archive(ctx context.Context, requester policy.Principal, id string) (domain.Workspace, error) {
	if _, err := r.authorizeWrite(ctx, requester, id); err != nil {
		return domain.Workspace{}, err
	}
	updated, err := r.repo.SetArchived(ctx, id, true)
	if err != nil {
		return domain.Workspace{}, err
	}
	r.auditBestEffort(ctx, "workspace.archive", requester.ID, id, nil)
	return updated, nil
}

// Unarchive clears archived_at; idempotent.
func (r *Registry) Unarchive(ctx context.Context, requester policy.Principal, id string) (domain.Workspace, error) {
	if _, err := r.authorizeWrite(ctx, requester, id); err != nil {
		return domain.Workspace{}, err
	}
	updated, err := r.repo.SetArchived(ctx, id, false)
	if err != nil {
		return domain.Workspace{}, err
	}
	r.auditBestEffort(ctx, "workspace.unarchive", requester.ID, id, nil)
	return updated, nil
}

// Publish sets visibility = ORG_READ (spec §4.2). Any existing ACL is
// retained in storage but no longer consulted by the read policy.
func (r *Registry) Publish(ctx context.Context, requester policy.Principal, id string) (domain.Workspace, error) {
	if _, err := r.authorizeWrite(ctx, requester, id); err != nil {
		return domain.Workspace{}, err
	}
	updated, err := r.repo.SetVisibility(ctx, id, domain.VisibilityOrgRead)
	if err != nil {
		return domain.Workspace{}, err
	}
	r.auditBestEffort(ctx, "workspace.publish", requester.ID, id, nil)
	return updated, nil
}

// Share atomically replaces the workspace's ACL set. A non-empty set
// implies visibility=SHARED; an empty set reverts visibility to PRIVATE
// (spec §3, I-ACL1 and I-W2).
func (r *Registry) Share(ctx context.Context, requester policy.Principal, id string, userIDs []string) (domain.Workspace, error) {
	ws, err := r.authorizeWrite(ctx, requester, id)
	if err != nil {
		return domain.Workspace{}, err
	}

	if len(userIDs) > 0 {
		active, err := r.users.ActiveUserIDs(ctx, userIDs)
		if err != nil {
			return domain.Workspace{}, err
		}
		for _, userID := range userIDs {
			if !active[userID] {
				return domain.Workspace{}, apperrors.Newf(apperrors.ErrorTypeValidation, "user %q does not exist or is not active", userID)
			}
		}
	}

	added, removed, err := r.repo.ReplaceACL(ctx, ws.ID, userIDs)
	if err != nil {
		return domain.Workspace{}, err
	}

	visibility := domain.VisibilityShared
	if len(userIDs) == 0 {
		visibility = domain.VisibilityPrivate
	}
	updated, err := r.repo.SetVisibility(ctx, id, visibility)
	if err != nil {
		return domain.Workspace{}, err
	}

	r.auditBestEffort(ctx, "workspace.share", requester.ID, id, map[string]interface{}{
		"added":   added,
		"removed": removed,
	})
	return updated, nil
}

func (r *Registry) authorizeWrite(ctx context.Context, requester policy.Principal, id string) (domain.Workspace, error) {
	ws, err := r.repo.Get(ctx, id)
	if err != nil {
		return domain.Workspace{}, err
	}
	if !policy.CanWrite(requester, ws) {
		aclMembers, aclErr := r.repo.ACLMembers(ctx, id)
		if aclErr == nil && policy.CanRead(requester, ws, aclMembers) {
			return domain.Workspace{}, apperrors.NewAccessDeniedError("insufficient permission to modify this workspace")
		}
		return domain.Workspace{}, apperrors.NewNotFoundError("workspace")
	}
	return ws, nil
}

func (r *Registry) auditBestEffort(ctx context.Context, action, actor, targetID string, metadata map[string]interface{}) {
	if r.audit == nil {
		return
	}
	event := domain.AuditEvent{
		ID:        r.idGen(),
		Actor:     actor,
		Action:    action,
		TargetID:  targetID,
		Metadata:  metadata,
		CreatedAt: r.now(),
	}
	if err := r.audit.Record(ctx, event); err != nil {
		r.logger.Warn("failed to record audit event", obslog.NewFields().Operation(action).Error(err).Zap()...)
	}
}
