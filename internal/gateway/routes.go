package gateway

import (
	"context"
	"net/http"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /irc", func(w http.ResponseWriter, r *http.Request) {
		s.handleIRCWebSocket(ctx, w, r)
	})

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// handleIRCWebSocket upgrades to WebSocket and runs an IRC client on it.
func (s *Server) handleIRCWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited: too many failed logins")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket client")

	s.wg.Add(1)
	defer s.wg.Done()
	s.serveConn(ctx, newWSLineConn(conn))
}
