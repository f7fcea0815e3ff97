package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/policy"
	"github.com/SaintWyss/ragcore/internal/workspace"
)

func workspaceCreateInput(req createWorkspaceRequest, requester policy.Principal) workspace.CreateInput {
	return workspace.CreateInput{
		Name: req.Name, Description: req.Description, OwnerUserID: req.OwnerUserID,
		Visibility: domain.Visibility(req.Visibility), Requester: requester,
	}
}

func workspaceToResponse(ws domain.Workspace) workspaceResponse {
	return workspaceResponse{
		ID: ws.ID, Name: ws.Name, Description: ws.Description, OwnerUserID: ws.OwnerUserID,
		Visibility: string(ws.Visibility), Archived: ws.IsArchived(), CreatedAt: ws.CreatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	ws, err := s.workspaces.Create(r.Context(), workspaceCreateInput(req, principalFromContext(r.Context())))
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, workspaceToResponse(ws))
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	page, pageSize := pagingParams(r)

	list, err := s.workspaces.ListVisible(r.Context(), principalFromContext(r.Context()), includeArchived, page, pageSize)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	items := make([]workspaceResponse, len(list))
	for i, ws := range list {
		items[i] = workspaceToResponse(ws)
	}
	writeJSON(w, s.logger, http.StatusOK, pageResponse{Items: items, Page: page, PageSize: pageSize})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	ws, err := s.workspaces.Get(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, workspaceToResponse(ws))
}

func (s *Server) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	var req updateWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	ws, err := s.workspaces.Rename(r.Context(), principalFromContext(r.Context()), id, req.Name, req.Description)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, workspaceToResponse(ws))
}

func (s *Server) handlePublishWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	ws, err := s.workspaces.Publish(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, workspaceToResponse(ws))
}

func (s *Server) handleShareWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	var req shareWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	ws, err := s.workspaces.Share(r.Context(), principalFromContext(r.Context()), id, req.UserIDs)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, workspaceToResponse(ws))
}

func (s *Server) handleArchiveWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	ws, err := s.workspaces.Archive(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, workspaceToResponse(ws))
}

func pagingParams(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = n
		}
	}
	return page, pageSize
}
