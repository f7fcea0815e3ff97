package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SaintWyss/ragcore/internal/answer"
	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/retrieval"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	chunks, err := s.queryService.Query(r.Context(), retrieval.QueryRequest{
		WorkspaceID: workspaceID, Requester: principalFromContext(r.Context()), Query: req.Query, TopK: req.TopK,
	})
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}

	items := make([]chunkResponse, len(chunks))
	for i, c := range chunks {
		items[i] = chunkResponse{
			ChunkID: c.ChunkID, DocumentID: c.DocumentID, DocumentTitle: c.DocumentTitle,
			ChunkIndex: c.ChunkIndex, Content: c.Content, Score: c.Score, Source: string(c.Source),
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]interface{}{"chunks": items})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	result, err := s.generator.Ask(r.Context(), answer.Request{
		WorkspaceID: workspaceID, Requester: principalFromContext(r.Context()), Query: req.Query, TopK: req.TopK,
	})
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, askResultToResponse(result))
}

func askResultToResponse(result answer.Result) askResponse {
	sources := make([]citationResponse, len(result.Citations))
	for i, c := range result.Citations {
		sources[i] = citationResponse{
			ChunkID: c.ChunkID, DocumentID: c.DocumentID, DocumentTitle: c.DocumentTitle,
			ChunkIndex: c.ChunkIndex, Marker: c.Marker,
		}
	}
	return askResponse{
		Answer: result.Answer, Sources: sources, TemplateVersion: result.TemplateVersion,
		Refused: result.Refused, RefusalReason: result.RefusalReason,
	}
}

// handleAskStream runs the streaming generation path over Server-Sent
// Events (spec §6.1 "Streaming format"): one `sources` event, zero or
// more `token` events, then a terminal `done` or `error` event.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, r, s.logger, apperrors.New(apperrors.ErrorTypeValidation, "malformed request body"))
		return
	}
	if err := validatorInstance().Struct(req); err != nil {
		writeProblem(w, r, s.logger, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid request body"))
		return
	}

	events, err := s.generator.AskStream(r.Context(), answer.Request{
		WorkspaceID: workspaceID, Requester: principalFromContext(r.Context()), Query: req.Query, TopK: req.TopK,
	})
	if err != nil {
		writeProblem(w, r, s.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, r, s.logger, apperrors.NewInternalError(nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		writeSSEEvent(w, event)
		flusher.Flush()
	}
}

func writeSSEEvent(w http.ResponseWriter, event answer.Event) {
	fmt.Fprintf(w, "event: %s\n", event.Kind)
	fmt.Fprintf(w, "data: %s\n\n", sseEventData(event))
}
