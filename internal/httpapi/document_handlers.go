package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/document"
	"github.com/SaintWyss/ragcore/internal/domain"
)

func documentToResponse(doc domain.Document) documentResponse {
	return documentResponse{
		ID: doc.ID, WorkspaceID: doc.WorkspaceID, Title: doc.Title, Source: doc.Source,
		MimeType: doc.MimeType, Status: string(doc.Status), ErrorMessage: doc.ErrorMessage,
		Tags: doc.Tags, CreatedAt: doc.CreatedAt.Format(timeLayout),
	}
}

// handleUploadDocument admits a multipart binary upload (spec §6.1,
// `POST /v1/workspaces/{w}/documents/upload`).
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypePayloadTooLarge, "upload exceeds the maximum form size"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "missing multipart field \"file\""))
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	result, err := s.documents.Upload(r.Context(), document.UploadInput{
		WorkspaceID: workspaceID, Requester: principalFromContext(r.Context()), Title: title,
		MimeType: mimeType, Tags: tags, Content: file, Size: header.Size,
	})
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, admissionResult(result))
}

// handleIngestText admits an inline-text document (spec §6.1, `POST
// /v1/workspaces/{w}/ingest/text`).
func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	var req ingestTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	result, err := s.documents.IngestText(r.Context(), document.IngestTextInput{
		WorkspaceID: workspaceID, Requester: principalFromContext(r.Context()),
		Title: req.Title, Content: req.Content, Tags: req.Tags,
	})
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, admissionResult(result))
}

func admissionResult(result document.AdmissionResult) admissionResponse {
	status := "PENDING"
	if result.Idempotent {
		status = "EXISTING"
	}
	return admissionResponse{ID: result.DocumentID, Status: status, Idempotent: result.Idempotent}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	page, pageSize := pagingParams(r)

	filter := document.ListFilter{
		Status: domain.DocumentStatus(r.URL.Query().Get("status")),
		Tag:    r.URL.Query().Get("tag"),
		Query:  r.URL.Query().Get("q"),
		Page:   page, PageSize: pageSize,
	}

	list, err := s.documents.List(r.Context(), principalFromContext(r.Context()), workspaceID, filter)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	items := make([]documentResponse, len(list))
	for i, d := range list {
		items[i] = documentToResponse(d)
	}
	writeJSON(w, s.logger, http.StatusOK, pageResponse{Items: items, Page: page, PageSize: pageSize})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	docID := chi.URLParam(r, "documentID")

	doc, err := s.documents.Get(r.Context(), principalFromContext(r.Context()), workspaceID, docID)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, documentToResponse(doc))
}

func (s *Server) handleReprocessDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	docID := chi.URLParam(r, "documentID")

	if err := s.documents.Reprocess(r.Context(), principalFromContext(r.Context()), workspaceID, docID); err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, admissionResponse{ID: docID, Status: "PENDING"})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	docID := chi.URLParam(r, "documentID")

	if err := s.documents.Delete(r.Context(), principalFromContext(r.Context()), workspaceID, docID); err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, admissionResponse{ID: docID, Status: "DELETED"})
}
