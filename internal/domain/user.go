// Package domain holds the core entities of the retrieval subsystem:
// users, workspaces, ACL entries, documents, chunks, and audit events. They
// are plain value types with UUID foreign keys; ownership is expressed by
// field, never by back-pointer (spec §9).
package domain

import "time"

// Role is a user's authority level.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// User is an account in the system. Never hard-deleted while referenced
// (spec §3).
type User struct {
	ID        string
	Email     string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
