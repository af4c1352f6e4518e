package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/qbridge/internal/bridge"
	"github.com/soyeahso/qbridge/internal/config"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/hooks"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/store"
	"github.com/soyeahso/qbridge/internal/translate"
	"github.com/soyeahso/qbridge/internal/version"
)

// SessionRecorder persists session summaries for the status command.
type SessionRecorder interface {
	Record(info *domain.SessionInfo) error
}

// Server accepts IRC clients over TCP and WebSocket and bridges each of
// them to the Quassel core.
type Server struct {
	cfg     config.Config
	auth    ResolvedAuth
	log     *logging.Logger
	clients *ClientRegistry
	mode    translate.Mode
	dialer  bridge.Dialer
	state   store.State
	hooks   *hooks.Manager
	sessLog SessionRecorder

	startedAt   time.Time
	wg          sync.WaitGroup
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter

	mu      sync.Mutex
	ircAddr net.Addr
	webAddr net.Addr
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithState sets where backlog cursors and buffers are kept.
func WithState(st store.State) ServerOption {
	return func(s *Server) { s.state = st }
}

// WithSessionLog records session summaries as they change.
func WithSessionLog(r SessionRecorder) ServerOption {
	return func(s *Server) { s.sessLog = r }
}

// WithDialer replaces the dialer built from the core config.
func WithDialer(d bridge.Dialer) ServerOption {
	return func(s *Server) { s.dialer = d }
}

// New creates a gateway server. The config is assumed validated.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) (*Server, error) {
	mode, err := translate.ParseMode(cfg.Bridge.Mode)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		mode:        mode,
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.HTTP.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = CoreDialer(cfg.Core)
	}
	if s.state == nil {
		s.state = store.NewMemoryState()
	}
	return s, nil
}

// CoreDialer builds the dialer for the configured core.
func CoreDialer(cfg config.CoreConfig) bridge.NetDialer {
	d := bridge.NetDialer{Address: cfg.Address}
	if cfg.TLS.Enabled {
		serverName := cfg.TLS.ServerName
		if serverName == "" {
			serverName, _, _ = net.SplitHostPort(cfg.Address)
		}
		d.TLS = &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}
	}
	return d
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// Requests without an Origin header are non-browser clients and allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Start listens on the configured addresses and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ircLn, err := s.listenIRC()
	if err != nil {
		return err
	}

	var httpLn net.Listener
	if s.cfg.Gateway.HTTP.Enabled {
		httpLn, err = net.Listen("tcp", s.cfg.Gateway.HTTP.Listen)
		if err != nil {
			ircLn.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Gateway.HTTP.Listen, err)
		}
	}
	return s.Serve(ctx, ircLn, httpLn)
}

func (s *Server) listenIRC() (net.Listener, error) {
	addr := s.cfg.Gateway.Listen
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if host, _, _ := net.SplitHostPort(addr); !isLoopback(host) {
		s.log.Warn().Msg("TLS is not enabled; core passwords will be transmitted in cleartext")
	}
	return ln, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Serve accepts IRC clients on ircLn and, when httpLn is not nil, serves
// the HTTP endpoints on it. It returns once ctx is cancelled and every
// session has ended.
func (s *Server) Serve(ctx context.Context, ircLn, httpLn net.Listener) error {
	s.startedAt = time.Now()
	s.mu.Lock()
	s.ircAddr = ircLn.Addr()
	if httpLn != nil {
		s.webAddr = httpLn.Addr()
	}
	s.mu.Unlock()

	go s.authLimiter.run(ctx)

	httpErr := make(chan error, 1)
	if httpLn != nil {
		mux := http.NewServeMux()
		s.registerHTTPRoutes(ctx, mux)
		s.httpServer = &http.Server{
			Handler:           withMiddleware(mux, s.log, s.cfg.Gateway.HTTP.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		go func() {
			if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	s.log.Info().
		Str("irc", ircLn.Addr().String()).
		Str("core", s.cfg.Core.Address).
		Str("mode", s.mode.String()).
		Msg("gateway server ready")
	if httpLn != nil {
		s.log.Info().Str("http", httpLn.Addr().String()).Msg("http endpoints ready")
	}

	data := map[string]any{"irc": ircLn.Addr().String()}
	if httpLn != nil {
		data["http"] = httpLn.Addr().String()
	}
	s.emit(ctx, hooks.EventGatewayStart, data)

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- s.acceptLoop(ctx, ircLn) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-acceptErr:
	case err = <-httpErr:
	}

	s.log.Info().Msg("shutting down gateway server")
	ircLn.Close()
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s.httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	s.wg.Wait()
	s.emit(context.Background(), hooks.EventGatewayStop, nil)
	if s.hooks != nil {
		// session_end hooks of the clients just closed are still running.
		s.hooks.Wait()
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Go(func() { s.serveConn(ctx, newTCPLineConn(conn)) })
	}
}

// serveConn runs one client to completion.
func (s *Server) serveConn(ctx context.Context, lc LineConn) {
	if !s.authLimiter.allow(lc.RemoteAddr()) {
		s.log.Warn().Str("remote", lc.RemoteAddr()).Msg("rate limited: too many failed logins")
		lc.WriteLine([]byte("ERROR :Too many failed logins, try again later"))
		lc.Close()
		return
	}
	c := newClient(lc, s)
	stop := context.AfterFunc(ctx, func() { c.quit("Gateway shutting down") })
	defer stop()
	c.serve(ctx)
}

// IRCAddr returns the IRC listener's address, or nil before Serve.
func (s *Server) IRCAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ircAddr
}

// HTTPAddr returns the HTTP listener's address, or nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webAddr
}

// Sessions lists the live sessions.
func (s *Server) Sessions() []domain.SessionInfo {
	return s.clients.Sessions()
}

func (s *Server) serverName() string {
	if s.cfg.Gateway.ServerName != "" {
		return s.cfg.Gateway.ServerName
	}
	return "qbridge"
}

func (s *Server) versionString() string {
	return "qbridge-" + version.Version
}

func (s *Server) record(info *domain.SessionInfo) {
	if s.sessLog == nil {
		return
	}
	if err := s.sessLog.Record(info); err != nil {
		s.log.Warn().Err(err).Str("session", info.ID).Msg("failed to record session")
	}
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

func (s *Server) emitAsync(event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.EmitAsync(context.Background(), event, data)
	}
}
