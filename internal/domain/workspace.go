package domain

import "time"

// Visibility controls who besides the owner can read a workspace.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityOrgRead Visibility = "ORG_READ"
	VisibilityShared  Visibility = "SHARED"
)

// Workspace is the tenant-isolating container of documents and ACL
// entries; the unit of authorization (spec §3).
//
// Invariants:
//   - I-W1: (OwnerUserID, Name) is unique.
//   - I-W2: Visibility == SHARED iff the ACL has at least one entry.
//   - I-W3: archived workspaces are excluded from default listings but
//     remain addressable by id for read-only operations.
type Workspace struct {
	ID          string
	Name        string
	Description string
	OwnerUserID string
	Visibility  Visibility
	ArchivedAt  *time.Time
	CreatedAt   time.Time
}

// IsArchived reports whether the workspace has been archived.
func (w Workspace) IsArchived() bool {
	return w.ArchivedAt != nil
}

// ACLEntry grants READ access to a workspace for a specific user. ACL
// entries are a weak cross-reference, never ownership (spec §3).
//
// Invariant I-ACL1: (WorkspaceID, UserID) is unique.
type ACLEntry struct {
	WorkspaceID string
	UserID      string
	GrantedAt   time.Time
}
