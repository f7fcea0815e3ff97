package httpapi

import (
	"context"
	"net/http"
)

// Pinger checks liveness of a downstream dependency the core needs to
// serve traffic (spec §6.1, `GET /readyz`).
type Pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.readyCheckers {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": name})
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}
