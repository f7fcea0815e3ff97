package httpapi

import (
	"encoding/json"

	"github.com/SaintWyss/ragcore/internal/answer"
)

type sseSourcesPayload struct {
	Citations       []citationResponse `json:"citations"`
	TemplateVersion string             `json:"template_version"`
}

type sseTokenPayload struct {
	Token string `json:"token"`
}

type sseErrorPayload struct {
	Code string `json:"code"`
}

// sseEventData renders an answer.Event's JSON `data:` payload. Each kind
// carries exactly the fields relevant to it (spec §6.1, "Streaming
// format").
func sseEventData(event answer.Event) string {
	var payload interface{}
	switch event.Kind {
	case answer.EventSources:
		citations := make([]citationResponse, len(event.Citations))
		for i, c := range event.Citations {
			citations[i] = citationResponse{
				ChunkID: c.ChunkID, DocumentID: c.DocumentID, DocumentTitle: c.DocumentTitle,
				ChunkIndex: c.ChunkIndex, Marker: c.Marker,
			}
		}
		payload = sseSourcesPayload{Citations: citations, TemplateVersion: event.TemplateVersion}
	case answer.EventToken:
		payload = sseTokenPayload{Token: event.Token}
	case answer.EventError:
		payload = sseErrorPayload{Code: event.ErrorCode}
	default: // EventDone
		payload = struct{}{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(body)
}
