package domain

import "time"

// AuditEvent is an append-only record of a mutating operation against
// users, workspaces, ACL entries, documents, or a document state
// transition (spec §3).
type AuditEvent struct {
	ID        string
	Actor     string
	Action    string
	TargetID  string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}
