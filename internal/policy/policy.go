// Package policy implements the authorization decision module (spec §4.1):
// a pure, side-effect-free set of functions deciding read/write authority
// over a workspace from a principal, the workspace, and its ACL. It never
// touches the database.
package policy

import "github.com/SaintWyss/ragcore/internal/domain"

// Principal is the authenticated identity an operation runs as.
type Principal struct {
	ID     string
	Role   domain.Role
	Active bool
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

// CanRead decides whether principal may read workspace, given the set of
// user ids granted ACL access. Evaluated per the ordered rules of spec
// §4.1:
//  1. inactive principal -> deny
//  2. admin -> allow
//  3. owner -> allow
//  4. ORG_READ and role in {admin, employee} -> allow
//  5. SHARED and principal in aclMembers -> allow
//  6. otherwise (PRIVATE, or no match) -> deny
func CanRead(principal Principal, workspace domain.Workspace, aclMembers map[string]bool) bool {
	if !principal.Active {
		return false
	}
	if principal.IsAdmin() {
		return true
	}
	if principal.ID == workspace.OwnerUserID {
		return true
	}
	switch workspace.Visibility {
	case domain.VisibilityOrgRead:
		return principal.Role == domain.RoleAdmin || principal.Role == domain.RoleEmployee
	case domain.VisibilityShared:
		return aclMembers[principal.ID]
	default: // PRIVATE
		return false
	}
}

// CanWrite decides whether principal may mutate workspace. Per spec §4.1:
//  1. inactive principal -> deny
//  2. admin -> allow (even on an archived workspace, per rule ordering)
//  3. archived workspace -> deny
//  4. owner -> allow
//  5. otherwise -> deny
func CanWrite(principal Principal, workspace domain.Workspace) bool {
	if !principal.Active {
		return false
	}
	if principal.IsAdmin() {
		return true
	}
	if workspace.IsArchived() {
		return false
	}
	return principal.ID == workspace.OwnerUserID
}
