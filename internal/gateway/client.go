package gateway

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/bridge"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/hooks"
	"github.com/soyeahso/qbridge/internal/logging"
)

// ErrClientClosed is returned when writing to a client that has gone away.
var ErrClientClosed = errors.New("client connection closed")

// Client is one IRC connection to the gateway. Before registration it is
// handled locally; afterwards it owns a bridge session and relays lines
// in both directions.
type Client struct {
	ConnID      string
	ConnectedAt time.Time

	conn LineConn
	srv  *Server
	log  *logging.Logger

	// Owned by the serve goroutine.
	reg registration

	session   *bridge.Session
	statusCh  chan struct{}
	watchDone chan struct{}

	mu         sync.Mutex
	closed     bool
	serverTime bool
	nick       string
}

func newClient(conn LineConn, srv *Server) *Client {
	id := uuid.New().String()
	return &Client{
		ConnID:      id,
		ConnectedAt: time.Now(),
		conn:        conn,
		srv:         srv,
		log:         srv.log.Sub("client").With("connId", id),
		statusCh:    make(chan struct{}, 1),
		watchDone:   make(chan struct{}),
	}
}

// serve reads lines until the client goes away, then ends its session.
func (c *Client) serve(ctx context.Context) {
	c.log.Debug().Str("remote", c.conn.RemoteAddr()).Msg("client connected")
	defer c.finish()

	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			if errors.Is(err, errLineTooLong) {
				c.quit("Line too long")
			}
			c.log.Debug().Err(err).Msg("client read ended")
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if done := c.handleLine(ctx, line); done {
			return
		}
	}
}

func (c *Client) finish() {
	if c.session != nil {
		c.session.Close()
		<-c.session.Done()
		<-c.watchDone
		c.srv.clients.Remove(c.ConnID)
	}
	c.Close()
}

// handleLine processes one client line. It reports whether the client
// should be disconnected.
func (c *Client) handleLine(ctx context.Context, line string) bool {
	e := girc.ParseEvent(line)
	if e == nil {
		c.log.Debug().Str("line", line).Msg("unparseable line")
		return false
	}
	if e.Command != girc.PASS {
		c.log.Trace().Str("line", line).Msg("client >")
	}

	switch e.Command {
	case girc.PING:
		c.reply(girc.PONG, e.Params...)
		return false
	case girc.PONG:
		return false
	case girc.CAP:
		return c.handleCap(ctx, e)
	case girc.QUIT:
		c.quit("Client quit")
		return true
	}

	if c.session == nil {
		return c.handleRegistration(ctx, e)
	}

	switch e.Command {
	case girc.PASS, girc.USER:
		c.numeric(girc.ERR_ALREADYREGISTRED, "You may not reregister")
		return false
	}

	c.srv.emitAsync(hooks.EventClientInput, map[string]any{
		"session": c.session.ID(),
		"command": e.Command,
	})
	if err := c.session.Send(line); err != nil {
		c.log.Debug().Err(err).Msg("session refused input")
		return errors.Is(err, bridge.ErrSessionClosed)
	}
	return false
}

// startSession creates the bridge session once PASS, NICK and USER are in.
func (c *Client) startSession(ctx context.Context) {
	c.mu.Lock()
	c.nick = c.reg.nick
	c.mu.Unlock()

	c.numeric(girc.RPL_WELCOME, "Welcome to "+c.srv.serverName()+", "+c.reg.nick)
	c.numeric(girc.RPL_YOURHOST, "Your host is "+c.srv.serverName()+", running "+c.srv.versionString())

	c.session = bridge.New(bridge.Config{
		UserName:     c.reg.user,
		Password:     c.reg.pass,
		Nick:         c.reg.nick,
		Remote:       c.conn.RemoteAddr(),
		Mode:         c.srv.mode,
		BacklogLimit: c.srv.cfg.Bridge.BacklogLimit,
	}, c.srv.dialer, c, c.srv.log, bridge.WithState(c.srv.state))
	c.reg.pass = ""

	c.srv.clients.Add(c)
	info := c.session.Info()
	c.srv.record(&info)
	c.srv.emit(ctx, hooks.EventSessionStart, sessionPayload(info))

	go c.watch()
	c.session.Start(ctx)
}

// watch records status changes and disconnects the client once the
// session ends.
func (c *Client) watch() {
	defer close(c.watchDone)
	for {
		select {
		case <-c.statusCh:
			info := c.session.Info()
			c.srv.record(&info)
		case <-c.session.Done():
			info := c.session.Info()
			c.srv.record(&info)
			c.srv.emitAsync(hooks.EventSessionEnd, sessionPayload(info))
			if strings.HasPrefix(info.LastError, "login failed") {
				c.srv.authLimiter.recordFailure(c.conn.RemoteAddr())
			}
			reason := "Closing link"
			if info.LastError != "" {
				reason += ": " + info.LastError
			}
			c.quit(reason)
			return
		}
	}
}

// Lines writes translated lines to the client. Server-time tags are only
// kept for clients that negotiated them.
func (c *Client) Lines(lines []domain.LineCommand) {
	c.mu.Lock()
	keepTags := c.serverTime
	c.mu.Unlock()

	for _, l := range lines {
		e := l.Event()
		if !keepTags {
			e.Tags = nil
		}
		if err := c.write(e); err != nil {
			c.log.Debug().Err(err).Msg("dropping lines for departed client")
			return
		}
	}
}

// Status is called by the session on every transition. It must not block
// on the session, so recording happens on the watch goroutine.
func (c *Client) Status(st domain.Status) {
	c.log.Info().Str("status", st.String()).Msg("session status")
	select {
	case c.statusCh <- struct{}{}:
	default:
	}
	c.srv.emitAsync(hooks.EventSessionStatus, map[string]any{
		"session": c.session.ID(),
		"status":  st.String(),
	})
}

// Info returns the session snapshot, or false before registration.
func (c *Client) Info() (domain.SessionInfo, bool) {
	if c.session == nil {
		return domain.SessionInfo{}, false
	}
	return c.session.Info(), true
}

func (c *Client) write(e *girc.Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}
	b := e.Bytes()
	c.log.Trace().Bytes("line", b).Msg("client <")
	return c.conn.WriteLine(b)
}

// reply sends a command from the gateway itself.
func (c *Client) reply(command string, params ...string) {
	c.write(&girc.Event{
		Source:  &girc.Source{Name: c.srv.serverName()},
		Command: command,
		Params:  slices.Clone(params),
	})
}

// numeric sends a numeric addressed to the client's nick, or "*" before
// one is known.
func (c *Client) numeric(code string, params ...string) {
	c.reply(code, append([]string{c.target()}, params...)...)
}

func (c *Client) target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nick != "" {
		return c.nick
	}
	if c.reg.nick != "" {
		return c.reg.nick
	}
	return "*"
}

// quit sends ERROR and closes the connection.
func (c *Client) quit(reason string) {
	c.write(&girc.Event{Command: girc.ERROR, Params: []string{reason}})
	c.Close()
}

// Close closes the client connection. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func sessionPayload(info domain.SessionInfo) map[string]any {
	p := map[string]any{
		"session": info.ID,
		"user":    info.User,
		"remote":  info.Remote,
		"status":  info.Status.String(),
	}
	if info.NetworkID.Valid() {
		p["network"] = int32(info.NetworkID)
	}
	if info.LastError != "" {
		p["error"] = info.LastError
	}
	return p
}

// ClientRegistry tracks clients with a live bridge session.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Msg("session registered")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("session unregistered")
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of registered clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Sessions returns a snapshot of every live session, oldest first.
func (r *ClientRegistry) Sessions() []domain.SessionInfo {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	out := make([]domain.SessionInfo, 0, len(clients))
	for _, c := range clients {
		if info, ok := c.Info(); ok {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b domain.SessionInfo) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
