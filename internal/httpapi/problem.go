// Package httpapi exposes the core's HTTP surface (spec §6.1): workspace
// and document CRUD, hybrid retrieval, buffered and streaming answer
// generation, and the health/metrics endpoints, wired on go-chi.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/obslog"
)

// Problem is the RFC 7807 `application/problem+json` error body every
// 4xx/5xx response carries (spec §6.1 "Error format", spec §7).
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	Code     string `json:"code"`
	ErrorID  string `json:"error_id"`
}

const problemTypeBase = "https://ragcore.example.com/problems/"

// writeProblem maps err through the apperrors taxonomy and writes an RFC
// 7807 body. Every 5xx is assigned a fresh error_id and logged with it,
// so an operator can correlate the response the caller saw with the
// structured log line (spec §7, "Propagation policy").
func writeProblem(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperrors.GetStatusCode(err)
	errType := apperrors.GetType(err)
	detail := apperrors.SafeErrorMessage(err)

	errorID := ""
	if status >= http.StatusInternalServerError {
		errorID = uuid.NewString()
		logger.Error("request failed",
			append(obslog.HTTPFields(r.Method, r.URL.Path, status).Custom("error_id", errorID).Error(err).Zap(),
				zap.String("request_id", requestIDFromContext(r.Context())))...)
	}

	problem := Problem{
		Type:     problemTypeBase + errType.Code(),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     errType.Code(),
		ErrorID:  errorID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
