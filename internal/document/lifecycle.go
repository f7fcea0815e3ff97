// Package document implements the Document Lifecycle Manager (spec
// §4.3): admission, the PENDING -> PROCESSING -> READY|FAILED state
// machine, reprocessing, and soft delete.
package document

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/ingest/normalize"
	"github.com/SaintWyss/ragcore/internal/obslog"
	"github.com/SaintWyss/ragcore/internal/policy"
	"github.com/SaintWyss/ragcore/internal/ports"
)

// Repository is the persistence port for documents. FindByContentHash
// supports the idempotent-dedup path of spec §4.3 step 4;
// ClaimForProcessing implements the CAS transition of step "Processing".
type Repository interface {
	Insert(ctx context.Context, doc domain.Document) (domain.Document, error)
	Get(ctx context.Context, workspaceID, id string) (domain.Document, error)
	FindByContentHash(ctx context.Context, workspaceID, contentHash string) (domain.Document, bool, error)
	List(ctx context.Context, workspaceID string, filter ListFilter) ([]domain.Document, error)
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	MarkReady(ctx context.Context, id string, metadata map[string]interface{}) error
	MarkFailed(ctx context.Context, id string, sanitizedMessage string) error
	DeleteChunks(ctx context.Context, documentID string) error

	// ReprocessAtomic purges a document's chunks and resets it to
	// PENDING in one transaction (spec §4.3, "Reprocess"; I-C2).
	ReprocessAtomic(ctx context.Context, id string) error
	// DeleteAtomic purges a document's chunks and soft-deletes it in one
	// transaction (spec §4.3, "Soft delete"; I-C2).
	DeleteAtomic(ctx context.Context, id string) error
}

// WorkspaceLookup resolves the workspace and ACL needed to authorize a
// document operation, without giving this package a dependency on the
// workspace package's Registry type.
type WorkspaceLookup interface {
	Get(ctx context.Context, id string) (domain.Workspace, bool, error)
	ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error)
}

// AuditSink records a single append-only audit event.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// DedupCounter is a narrow metrics seam so this
// package does not import the concrete Prometheus registry.
type DedupCounter interface {
	IncDedupHit()
}

// ListFilter narrows a document listing (spec §4.3, "Listing").
type ListFilter struct {
	Status           domain.DocumentStatus
	Tag              string
	Query            string
	IncludeSoftDeleted bool
	Page, PageSize   int
}

// Limits bounds document admission (spec §6.4).
type Limits struct {
	MaxUploadBytes int64
}

// Manager is the Document Lifecycle Manager (C3).
type Manager struct {
	repo        Repository
	workspaces  WorkspaceLookup
	objects     ports.ObjectStorePort
	queue       ports.QueuePort
	audit       AuditSink
	dedupCounter DedupCounter
	logger      *zap.Logger
	idGen       func() string
	now         func() time.Time
	limits      Limits
}

// New constructs a Manager.
func New(repo Repository, workspaces WorkspaceLookup, objects ports.ObjectStorePort, queue ports.QueuePort, audit AuditSink, dedupCounter DedupCounter, logger *zap.Logger, idGen func() string, now func() time.Time, limits Limits) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo: repo, workspaces: workspaces, objects: objects, queue: queue,
		audit: audit, dedupCounter: dedupCounter, logger: logger,
		idGen: idGen, now: now, limits: limits,
	}
}

// UploadInput carries a binary upload (spec §4.3, "Admission").
type UploadInput struct {
	WorkspaceID string
	Requester   policy.Principal
	Title       string
	MimeType    string
	Tags        []string
	Content     io.Reader
	Size        int64
}

// IngestTextInput carries an inline-text admission.
type IngestTextInput struct {
	WorkspaceID string
	Requester   policy.Principal
	Title       string
	Content     string
	Tags        []string
}

// AdmissionResult is returned by Upload and IngestText.
type AdmissionResult struct {
	DocumentID string
	Idempotent bool
}

var allowedMimeTypes = map[string]bool{
	"text/plain":      true,
	"application/pdf":  true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Upload admits a binary document (spec §4.3, steps 1-6).
func (m *Manager) Upload(ctx context.Context, in UploadInput) (AdmissionResult, error) {
	ws, err := m.authorizeWrite(ctx, in.Requester, in.WorkspaceID)
	if err != nil {
		return AdmissionResult{}, err
	}

	if in.Size > m.limits.MaxUploadBytes {
		return AdmissionResult{}, apperrors.New(apperrors.ErrorTypePayloadTooLarge, fmt.Sprintf("upload exceeds the %d byte limit", m.limits.MaxUploadBytes))
	}
	if !allowedMimeTypes[in.MimeType] {
		return AdmissionResult{}, apperrors.New(apperrors.ErrorTypeUnsupportedMedia, fmt.Sprintf("mime type %q is not supported", in.MimeType))
	}

	hash, err := normalize.StreamHash(ws.ID, in.Content)
	if err != nil {
		return AdmissionResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to hash upload")
	}

	if existing, found, err := m.repo.FindByContentHash(ctx, ws.ID, hash); err != nil {
		return AdmissionResult{}, err
	} else if found && !existing.IsDeleted() {
		if m.dedupCounter != nil {
			m.dedupCounter.IncDedupHit()
		}
		return AdmissionResult{DocumentID: existing.ID, Idempotent: true}, nil
	}

	docID := m.idGen()
	storageKey := ws.ID + "/" + docID

	// StreamHash consumed Content; rewind it so the object store receives
	// the whole upload. Content that cannot seek is rejected.
	seeker, ok := in.Content.(io.Seeker)
	if !ok {
		return AdmissionResult{}, apperrors.New(apperrors.ErrorTypeInternal, "upload content is not seekable")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return AdmissionResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to rewind upload")
	}
	if err := m.objects.PutObject(ctx, storageKey, in.Content, in.Size, in.MimeType); err != nil {
		return AdmissionResult{}, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to store upload")
	}

	return m.insertAndEnqueue(ctx, ws.ID, docID, in.Requester.ID, in.Title, "upload", in.MimeType, storageKey, hash, in.Tags)
}

// IngestText admits an inline-text document (spec §4.3, steps 1-6).
func (m *Manager) IngestText(ctx context.Context, in IngestTextInput) (AdmissionResult, error) {
	ws, err := m.authorizeWrite(ctx, in.Requester, in.WorkspaceID)
	if err != nil {
		return AdmissionResult{}, err
	}

	size := int64(len([]byte(in.Content)))
	if size > m.limits.MaxUploadBytes {
		return AdmissionResult{}, apperrors.New(apperrors.ErrorTypePayloadTooLarge, fmt.Sprintf("content exceeds the %d byte limit", m.limits.MaxUploadBytes))
	}

	hash := normalize.ContentHash(ws.ID, in.Content)

	if existing, found, err := m.repo.FindByContentHash(ctx, ws.ID, hash); err != nil {
		return AdmissionResult{}, err
	} else if found && !existing.IsDeleted() {
		if m.dedupCounter != nil {
			m.dedupCounter.IncDedupHit()
		}
		return AdmissionResult{DocumentID: existing.ID, Idempotent: true}, nil
	}

	docID := m.idGen()
	storageKey := ws.ID + "/" + docID
	if err := m.objects.PutObject(ctx, storageKey, strings.NewReader(in.Content), size, "text/plain"); err != nil {
		return AdmissionResult{}, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to store content")
	}

	return m.insertAndEnqueue(ctx, ws.ID, docID, in.Requester.ID, in.Title, "text", "text/plain", storageKey, hash, in.Tags)
}

func (m *Manager) insertAndEnqueue(ctx context.Context, workspaceID, docID, uploaderID, title, source, mimeType, storageKey, hash string, tags []string) (AdmissionResult, error) {
	doc := domain.Document{
		ID:               docID,
		WorkspaceID:      workspaceID,
		Title:            title,
		Source:           source,
		MimeType:         mimeType,
		StorageKey:       storageKey,
		Status:           domain.DocumentPending,
		Tags:             tags,
		ContentHash:      hash,
		UploadedByUserID: uploaderID,
		CreatedAt:        m.now(),
	}

	inserted, err := m.repo.Insert(ctx, doc)
	if apperrors.IsType(err, apperrors.ErrorTypeConflictUnique) {
		// Lost the check-then-insert race; re-read the winning row so the
		// caller still gets a 202 with an idempotency flag (spec §4.3).
		existing, found, findErr := m.repo.FindByContentHash(ctx, workspaceID, hash)
		if findErr == nil && found {
			if m.dedupCounter != nil {
				m.dedupCounter.IncDedupHit()
			}
			return AdmissionResult{DocumentID: existing.ID, Idempotent: true}, nil
		}
	}
	if err != nil {
		return AdmissionResult{}, err
	}

	if err := m.queue.Enqueue(ctx, ports.Job{DocumentID: inserted.ID, WorkspaceID: workspaceID, Attempt: 0}); err != nil {
		m.logger.Error("failed to enqueue ingestion job", obslog.DocumentFields("enqueue", inserted.ID).Error(err).Zap()...)
		return AdmissionResult{}, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to enqueue processing job")
	}

	m.auditBestEffort(ctx, "document.create", uploaderID, inserted.ID, map[string]interface{}{"workspace_id": workspaceID})
	return AdmissionResult{DocumentID: inserted.ID}, nil
}

// Get fetches a document, authorizing via the read policy.
func (m *Manager) Get(ctx context.Context, requester policy.Principal, workspaceID, id string) (domain.Document, error) {
	if err := m.authorizeRead(ctx, requester, workspaceID); err != nil {
		return domain.Document{}, err
	}
	doc, err := m.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.IsDeleted() && !requester.IsAdmin() {
		return domain.Document{}, apperrors.NewNotFoundError("document")
	}
	return doc, nil
}

// List filters documents within a workspace (spec §4.3, "Listing").
func (m *Manager) List(ctx context.Context, requester policy.Principal, workspaceID string, filter ListFilter) ([]domain.Document, error) {
	if err := m.authorizeRead(ctx, requester, workspaceID); err != nil {
		return nil, err
	}
	if filter.IncludeSoftDeleted && !requester.IsAdmin() {
		filter.IncludeSoftDeleted = false
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 200 {
		filter.PageSize = 20
	}
	return m.repo.List(ctx, workspaceID, filter)
}

// Reprocess transitions a READY or FAILED document back to PENDING,
// purging its existing chunks and re-enqueueing it (spec §4.3,
// "Reprocess"). A document mid-PROCESSING reports CONFLICT_STATE.
func (m *Manager) Reprocess(ctx context.Context, requester policy.Principal, workspaceID, id string) error {
	if _, err := m.authorizeWrite(ctx, requester, workspaceID); err != nil {
		return err
	}
	doc, err := m.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if doc.IsDeleted() {
		return apperrors.NewNotFoundError("document")
	}
	if !doc.CanReprocess() {
		return apperrors.NewConflictStateError(fmt.Sprintf("document is %s, reprocess requires READY or FAILED", doc.Status))
	}

	if err := m.repo.ReprocessAtomic(ctx, id); err != nil {
		return err
	}
	if err := m.queue.Enqueue(ctx, ports.Job{DocumentID: id, WorkspaceID: workspaceID, Attempt: 0}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to enqueue reprocess job")
	}

	m.auditBestEffort(ctx, "document.reprocess", requester.ID, id, nil)
	return nil
}

// Delete soft-deletes a document in any state (spec §4.3, "Soft
// delete"). Chunks are purged in the same call rather than lazily
// (DESIGN.md Open Question resolution).
func (m *Manager) Delete(ctx context.Context, requester policy.Principal, workspaceID, id string) error {
	if _, err := m.authorizeWrite(ctx, requester, workspaceID); err != nil {
		return err
	}
	if _, err := m.repo.Get(ctx, workspaceID, id); err != nil {
		return err
	}
	if err := m.repo.DeleteAtomic(ctx, id); err != nil {
		return err
	}
	m.auditBestEffort(ctx, "document.delete", requester.ID, id, nil)
	return nil
}

// ClaimForProcessing performs the PENDING -> PROCESSING CAS used by the
// ingestion worker (spec §4.4 step 1). ok is false if another worker
// already claimed the job; that is an idempotent no-op, not an error.
func (m *Manager) ClaimForProcessing(ctx context.Context, documentID string) (bool, error) {
	return m.repo.ClaimForProcessing(ctx, documentID)
}

func (m *Manager) authorizeRead(ctx context.Context, requester policy.Principal, workspaceID string) error {
	ws, found, err := m.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NewNotFoundError("workspace")
	}
	acl, err := m.workspaces.ACLMembers(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !policy.CanRead(requester, ws, acl) {
		return apperrors.NewNotFoundError("workspace")
	}
	return nil
}

func (m *Manager) authorizeWrite(ctx context.Context, requester policy.Principal, workspaceID string) (domain.Workspace, error) {
	ws, found, err := m.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return domain.Workspace{}, err
	}
	if !found {
		return domain.Workspace{}, apperrors.NewNotFoundError("workspace")
	}
	if !policy.CanWrite(requester, ws) {
		acl, aclErr := m.workspaces.ACLMembers(ctx, workspaceID)
		if aclErr == nil && policy.CanRead(requester, ws, acl) {
			return domain.Workspace{}, apperrors.NewAccessDeniedError("insufficient permission to modify this workspace")
		}
		return domain.Workspace{}, apperrors.NewNotFoundError("workspace")
	}
	return ws, nil
}

func (m *Manager) auditBestEffort(ctx context.Context, action, actor, targetID string, metadata map[string]interface{}) {
	if m.audit == nil {
		return
	}
	event := domain.AuditEvent{ID: m.idGen(), Actor: actor, Action: action, TargetID: targetID, Metadata: metadata, CreatedAt: m.now()}
	if err := m.audit.Record(ctx, event); err != nil {
		m.logger.Warn("failed to record audit event", obslog.NewFields().Operation(action).Error(err).Zap()...)
	}
}
