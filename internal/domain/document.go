package domain

import "time"

// DocumentStatus is a state in the PENDING -> PROCESSING -> READY|FAILED
// lifecycle (spec §3, §4.3).
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentReady      DocumentStatus = "READY"
	DocumentFailed     DocumentStatus = "FAILED"
)

// Document is an uploaded or ingested unit of content belonging exclusively
// to one Workspace (spec §3).
//
// Invariants:
//   - I-D1: WorkspaceID is NOT NULL; every read is filtered by it.
//   - I-D2: Status is one of the four DocumentStatus values.
//   - I-D3: (WorkspaceID, ContentHash) is unique when ContentHash is set.
//   - I-D4: DeletedAt != nil hides the document from non-admin reads and
//     forbids further transitions except purge.
type Document struct {
	ID               string
	WorkspaceID      string
	Title            string
	Source           string
	MimeType         string
	StorageKey       string
	Status           DocumentStatus
	ErrorMessage     string
	Tags             []string
	ContentHash      string
	UploadedByUserID string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// IsDeleted reports whether the document has been soft-deleted.
func (d Document) IsDeleted() bool {
	return d.DeletedAt != nil
}

// CanReprocess reports whether the document is in a state from which
// reprocess is allowed (spec §4.3: "Allowed from READY or FAILED").
func (d Document) CanReprocess() bool {
	return d.Status == DocumentReady || d.Status == DocumentFailed
}

// HasTag reports whether tag is present in the document's tag set.
func (d Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
