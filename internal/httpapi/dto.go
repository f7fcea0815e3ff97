package httpapi

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// createWorkspaceRequest is the body of POST /v1/workspaces.
type createWorkspaceRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	Visibility  string `json:"visibility" validate:"omitempty,oneof=PRIVATE ORG_READ SHARED"`
	OwnerUserID string `json:"owner_user_id" validate:"omitempty,uuid"`
}

// updateWorkspaceRequest is the body of PATCH /v1/workspaces/{w}.
type updateWorkspaceRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description"`
}

// shareWorkspaceRequest is the body of POST /v1/workspaces/{w}/share.
type shareWorkspaceRequest struct {
	UserIDs []string `json:"user_ids" validate:"dive,uuid"`
}

// ingestTextRequest is the body of POST /v1/workspaces/{w}/ingest/text.
type ingestTextRequest struct {
	Title   string   `json:"title" validate:"required,max=300"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"dive,max=64"`
}

// askRequest is the body shared by /query, /ask, and /ask/stream.
type askRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"omitempty,min=1,max=50"`
}

// workspaceResponse is the wire shape of a domain.Workspace.
type workspaceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerUserID string `json:"owner_user_id"`
	Visibility  string `json:"visibility"`
	Archived    bool   `json:"archived"`
	CreatedAt   string `json:"created_at"`
}

// documentResponse is the wire shape of a domain.Document.
type documentResponse struct {
	ID           string   `json:"id"`
	WorkspaceID  string   `json:"workspace_id"`
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	MimeType     string   `json:"mime_type"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Tags         []string `json:"tags"`
	CreatedAt    string   `json:"created_at"`
}

// chunkResponse is a single result of the plain-retrieval `/query` route.
type chunkResponse struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkIndex    int     `json:"chunk_index"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Source        string  `json:"source"`
}

// citationResponse is a single source reference returned with an answer.
type citationResponse struct {
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	ChunkIndex    int    `json:"chunk_index"`
	Marker        string `json:"marker"`
}

// askResponse is the body of a successful buffered /ask call.
type askResponse struct {
	Answer          string             `json:"answer"`
	Sources         []citationResponse `json:"sources"`
	TemplateVersion string             `json:"template_version"`
	Refused         bool               `json:"refused,omitempty"`
	RefusalReason   string             `json:"refusal_reason,omitempty"`
}

// admissionResponse is the body of a successful upload/ingest call.
type admissionResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Idempotent bool   `json:"idempotent,omitempty"`
}

// pageResponse wraps a listing with its page metadata.
type pageResponse struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
