package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/version"
)

// HealthResponse is returned by the public health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by the authenticated status endpoint.
type StatusResponse struct {
	Version  string               `json:"version"`
	Core     string               `json:"core"`
	Mode     string               `json:"mode"`
	Uptime   string               `json:"uptime"`
	Sessions []domain.SessionInfo `json:"sessions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus lists live sessions for bearer-token holders.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}
	if res := Authorize(s.auth, r); !res.OK {
		s.authLimiter.recordFailure(r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": res.Reason})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Version:  version.Version,
		Core:     s.cfg.Core.Address,
		Mode:     s.mode.String(),
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
		Sessions: s.Sessions(),
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}
