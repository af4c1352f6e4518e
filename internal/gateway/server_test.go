package gateway

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/bridge"
	"github.com/soyeahso/qbridge/internal/config"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/hooks"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/peer"
	"github.com/soyeahso/qbridge/internal/quassel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var goBuf = domain.BufferInfo{ID: 10, NetworkID: 42, Type: domain.BufferChannel, Name: "#go"}

// --- fakes ---

// fakeCore hands out the core side of every dialed pipe.
type fakeCore struct {
	conns chan net.Conn
}

func newFakeCore() *fakeCore {
	return &fakeCore{conns: make(chan net.Conn, 4)}
}

func (c *fakeCore) Dial(ctx context.Context) (net.Conn, error) {
	client, server := net.Pipe()
	c.conns <- server
	return client, nil
}

func (c *fakeCore) Encrypted() bool { return false }

// dataStream accepts the next connection, answers the probe and returns
// the core's end of the negotiated peer.
func (c *fakeCore) dataStream(t *testing.T) peer.Handle {
	t.Helper()
	var conn net.Conn
	select {
	case conn = <-c.conns:
		t.Cleanup(func() { conn.Close() })
	case <-time.After(waitFor):
		t.Fatal("no connection from the gateway")
	}

	var probe [12]byte
	_, err := io.ReadFull(conn, probe[:])
	require.NoError(t, err)
	_, err = conn.Write(binary.BigEndian.AppendUint32(nil, uint32(quassel.DataStreamProtocol)))
	require.NoError(t, err)

	h, err := peer.New(quassel.Candidate{Type: quassel.DataStreamProtocol}, conn, conn, logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func expect[T quassel.Message](t *testing.T, h peer.Handle) T {
	t.Helper()
	var zero T
	select {
	case m := <-h.Events():
		v, ok := m.(T)
		require.True(t, ok, "want %T, got %T", zero, m)
		return v
	case err := <-h.Errors():
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %T", zero)
	}
	return zero
}

var errNoCore = errors.New("connection refused")

func unreachable() bridge.Dialer {
	return bridge.DialerFunc(func(ctx context.Context) (net.Conn, error) {
		return nil, errNoCore
	})
}

type fakeRecorder struct {
	mu    sync.Mutex
	infos []domain.SessionInfo
}

func (r *fakeRecorder) Record(info *domain.SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, *info)
	return nil
}

func (r *fakeRecorder) last() (domain.SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.infos) == 0 {
		return domain.SessionInfo{}, false
	}
	return r.infos[len(r.infos)-1], true
}

type hookLog struct {
	mu     sync.Mutex
	events []hooks.Payload
}

func (h *hookLog) handler(_ context.Context, p hooks.Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, p)
	return nil
}

func (h *hookLog) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, p := range h.events {
		out = append(out, p.Event)
	}
	return out
}

// --- harness ---

type harness struct {
	srv    *Server
	cancel context.CancelFunc
	done   chan error
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Gateway.ServerName = "gw.test"
	cfg.Gateway.Auth.Token = "test-token-123"
	cfg.Gateway.HTTP.Enabled = true
	return cfg
}

func startServer(t *testing.T, cfg config.Config, opts ...ServerOption) *harness {
	t.Helper()
	srv, err := New(cfg, logging.New(nil, "silent"), opts...)
	require.NoError(t, err)

	ircLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{srv: srv, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- srv.Serve(ctx, ircLn, httpLn) }()
	// Serve publishes the listener addresses from its own goroutine.
	require.Eventually(t, func() bool {
		return srv.IRCAddr() != nil && srv.HTTPAddr() != nil
	}, waitFor, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return h
}

func (h *harness) url(path string) string {
	return "http://" + h.srv.HTTPAddr().String() + path
}

type ircClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialIRC(t *testing.T, h *harness) *ircClient {
	t.Helper()
	conn, err := net.Dial("tcp", h.srv.IRCAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &ircClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *ircClient) send(lines ...string) {
	c.t.Helper()
	for _, l := range lines {
		_, err := c.conn.Write([]byte(l + "\r\n"))
		require.NoError(c.t, err)
	}
}

func (c *ircClient) next() *girc.Event {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(waitFor))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	e := girc.ParseEvent(strings.TrimRight(line, "\r\n"))
	require.NotNil(c.t, e, line)
	return e
}

// expect skips lines until one with the given command arrives.
func (c *ircClient) expect(command string) *girc.Event {
	c.t.Helper()
	for {
		if e := c.next(); e.Command == command {
			return e
		}
	}
}

func (c *ircClient) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(waitFor))
	for {
		if _, err := c.r.ReadString('\n'); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.t.Fatal("connection still open")
			}
			return
		}
	}
}

func last(e *girc.Event) string {
	return e.Params[len(e.Params)-1]
}

// --- tests ---

func TestGateway_BridgesClientToCore(t *testing.T) {
	core := newFakeCore()
	rec := &fakeRecorder{}
	hl := &hookLog{}
	hm := hooks.NewManager(logging.New(nil, "silent"))
	hm.On(hooks.EventSessionStart, "test", hl.handler)
	hm.On(hooks.EventSessionEnd, "test", hl.handler)

	h := startServer(t, testConfig(), WithDialer(core), WithSessionLog(rec), WithHooks(hm))
	c := dialIRC(t, h)

	c.send("CAP LS 302", "PASS secret", "NICK alice", "USER alice/42 0 * :Alice")
	ls := c.expect(girc.CAP)
	assert.Equal(t, []string{"*", "LS", "server-time"}, ls.Params)

	c.send("CAP REQ :server-time")
	ack := c.expect(girc.CAP)
	assert.Equal(t, []string{"alice", "ACK", "server-time"}, ack.Params)

	c.send("CAP END")
	welcome := c.expect(girc.RPL_WELCOME)
	assert.Equal(t, "gw.test", welcome.Source.Name)
	assert.Equal(t, "alice", welcome.Params[0])

	cp := core.dataStream(t)
	reg := expect[quassel.RegisterClient](t, cp)
	assert.NotEmpty(t, reg.ClientVersion)
	require.NoError(t, cp.Dispatch(quassel.ClientRegistered{Configured: true}))
	lg := expect[quassel.Login](t, cp)
	assert.Equal(t, quassel.Login{User: "alice", Password: "secret"}, lg)
	require.NoError(t, cp.Dispatch(quassel.LoginSuccess{}))
	require.NoError(t, cp.Dispatch(quassel.SessionState{
		NetworkIDs: []domain.NetworkID{42},
		Buffers:    []domain.BufferInfo{goBuf},
	}))

	assert.Equal(t, "Welcome to Quassel", last(c.expect(girc.RPL_MYINFO)))

	assert.Equal(t, quassel.InitRequest{Class: "Network", Object: "42"}, expect[quassel.InitRequest](t, cp))
	require.NoError(t, cp.Dispatch(quassel.InitData{
		Class:      "Network",
		Object:     "42",
		Properties: quassel.VariantMap{"myNick": "alice"},
	}))
	expect[quassel.SyncMessage](t, cp)
	c.expect(girc.RPL_ISUPPORT)

	c.send("PING :lag-check")
	pong := c.expect(girc.PONG)
	assert.Equal(t, "lag-check", last(pong))

	c.send("PRIVMSG #go :hello core")
	input := expect[quassel.RPCCall](t, cp)
	assert.Equal(t, quassel.VariantList{goBuf, "/SAY hello core"}, input.Params)

	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cp.Dispatch(quassel.RPCCall{
		Signal: "2displayMsg(Message)",
		Params: quassel.VariantList{domain.Message{
			ID:        5,
			Type:      domain.MessagePlain,
			Flags:     domain.FlagBacklog,
			Sender:    "bob!b@host",
			Buffer:    goBuf,
			Contents:  "earlier",
			Timestamp: ts,
		}},
	}))
	msg := c.expect(girc.PRIVMSG)
	assert.Equal(t, []string{"#go", "earlier"}, msg.Params)
	assert.Equal(t, "bob", msg.Source.Name)
	tag, ok := msg.Tags.Get("time")
	require.True(t, ok)
	assert.Equal(t, "2026-10-01T12:00:00.000Z", tag)

	// Status endpoint lists the live session.
	req, _ := http.NewRequest("GET", h.url("/status"), nil)
	req.Header.Set("Authorization", "Bearer test-token-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Mode     string `json:"mode"`
		Sessions []struct {
			User      string `json:"user"`
			Status    string `json:"status"`
			NetworkID int    `json:"networkId"`
		} `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "rich", status.Mode)
	require.Len(t, status.Sessions, 1)
	assert.Equal(t, "alice", status.Sessions[0].User)
	assert.Equal(t, "connected", status.Sessions[0].Status)
	assert.Equal(t, 42, status.Sessions[0].NetworkID)

	c.send("QUIT :bye")
	assert.Equal(t, "Client quit", last(c.expect(girc.ERROR)))
	c.expectClosed()

	require.Eventually(t, func() bool {
		return h.srv.clients.Count() == 0 && len(hl.names()) == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{hooks.EventSessionStart, hooks.EventSessionEnd}, hl.names())

	info, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, info.Status)
	assert.Equal(t, domain.NetworkID(42), info.NetworkID)
}

func TestGateway_TagsStrippedWithoutServerTime(t *testing.T) {
	core := newFakeCore()
	h := startServer(t, testConfig(), WithDialer(core))
	c := dialIRC(t, h)
	c.send("PASS secret", "NICK alice", "USER alice 0 * :Alice")
	c.expect(girc.RPL_WELCOME)

	cp := core.dataStream(t)
	expect[quassel.RegisterClient](t, cp)
	require.NoError(t, cp.Dispatch(quassel.ClientRegistered{Configured: true}))
	expect[quassel.Login](t, cp)
	require.NoError(t, cp.Dispatch(quassel.LoginSuccess{}))
	require.NoError(t, cp.Dispatch(quassel.SessionState{NetworkIDs: []domain.NetworkID{42}}))
	expect[quassel.InitRequest](t, cp)
	require.NoError(t, cp.Dispatch(quassel.InitData{Class: "Network", Object: "42", Properties: quassel.VariantMap{}}))
	expect[quassel.SyncMessage](t, cp)

	require.NoError(t, cp.Dispatch(quassel.RPCCall{
		Signal: "2displayMsg(Message)",
		Params: quassel.VariantList{domain.Message{
			ID: 1, Type: domain.MessagePlain, Flags: domain.FlagBacklog,
			Sender: "bob", Buffer: goBuf, Contents: "x", Timestamp: time.Now(),
		}},
	}))
	msg := c.expect(girc.PRIVMSG)
	assert.Empty(t, msg.Tags)
}

func TestGateway_AddressesReadyWhenStarted(t *testing.T) {
	for range 20 {
		h := startServer(t, testConfig(), WithDialer(unreachable()))
		require.NotNil(t, h.srv.IRCAddr())
		require.NotNil(t, h.srv.HTTPAddr())

		c := dialIRC(t, h)
		c.send("PING :up")
		assert.Equal(t, "up", last(c.expect(girc.PONG)))

		resp, err := http.Get(h.url("/health"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestGateway_PasswordRequired(t *testing.T) {
	h := startServer(t, testConfig(), WithDialer(unreachable()))
	c := dialIRC(t, h)

	c.send("NICK alice", "USER alice 0 * :Alice")
	assert.Equal(t, "alice", c.expect(girc.ERR_PASSWDMISMATCH).Params[0])
	assert.Equal(t, "Password required", last(c.expect(girc.ERROR)))
	c.expectClosed()
}

func TestGateway_CommandsBeforeRegistration(t *testing.T) {
	h := startServer(t, testConfig(), WithDialer(unreachable()))
	c := dialIRC(t, h)

	c.send("JOIN #go")
	nr := c.expect(girc.ERR_NOTREGISTERED)
	assert.Equal(t, "*", nr.Params[0])

	c.send("PING :still-here")
	assert.Equal(t, "still-here", last(c.expect(girc.PONG)))

	c.send("NICK")
	c.expect(girc.ERR_NONICKNAMEGIVEN)

	c.send("CAP REQ :multi-prefix")
	nak := c.expect(girc.CAP)
	assert.Equal(t, "NAK", nak.Params[1])
}

func TestGateway_CoreFailureClosesClient(t *testing.T) {
	rec := &fakeRecorder{}
	h := startServer(t, testConfig(), WithDialer(unreachable()), WithSessionLog(rec))
	c := dialIRC(t, h)

	c.send("PASS secret", "NICK alice", "USER alice 0 * :Alice")
	c.expect(girc.RPL_WELCOME)

	errLine := c.expect("400")
	assert.Equal(t, "connection refused", last(errLine))
	assert.Equal(t, "Closing link: connection refused", last(c.expect(girc.ERROR)))
	c.expectClosed()

	require.Eventually(t, func() bool {
		info, ok := rec.last()
		return ok && info.Status == domain.StatusError
	}, waitFor, 5*time.Millisecond)
	info, _ := rec.last()
	assert.Equal(t, "connection refused", info.LastError)
}

func TestGateway_LoginFailureCountsAgainstHost(t *testing.T) {
	core := newFakeCore()
	h := startServer(t, testConfig(), WithDialer(core))
	c := dialIRC(t, h)
	c.send("PASS wrong", "NICK alice", "USER alice 0 * :Alice")

	cp := core.dataStream(t)
	expect[quassel.RegisterClient](t, cp)
	require.NoError(t, cp.Dispatch(quassel.ClientRegistered{Configured: true}))
	expect[quassel.Login](t, cp)
	require.NoError(t, cp.Dispatch(quassel.LoginFailed{Reason: "bad password"}))

	assert.Equal(t, "login failed: bad password", last(c.expect("400")))
	c.expectClosed()

	require.Eventually(t, func() bool {
		l := h.srv.authLimiter
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.failures["127.0.0.1"]) == 1
	}, waitFor, 5*time.Millisecond)
}

func TestGateway_RateLimitedHostIsTurnedAway(t *testing.T) {
	h := startServer(t, testConfig(), WithDialer(unreachable()))
	for range authRateMaxFails {
		h.srv.authLimiter.recordFailure("127.0.0.1:1")
	}

	c := dialIRC(t, h)
	assert.Contains(t, last(c.expect(girc.ERROR)), "Too many failed logins")
	c.expectClosed()
}

func TestGateway_WebSocket(t *testing.T) {
	h := startServer(t, testConfig(), WithDialer(unreachable()))

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+h.srv.HTTPAddr().String()+"/irc", nil)
	require.NoError(t, err)
	defer ws.Close()

	// Several lines may share a frame.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte("PASS secret\r\nNICK bob\r\nUSER bob 0 * :Bob\r\n")))

	var commands []string
	ws.SetReadDeadline(time.Now().Add(waitFor))
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			break
		}
		assert.False(t, strings.HasSuffix(string(msg), "\n"), "frame %q", msg)
		e := girc.ParseEvent(string(msg))
		require.NotNil(t, e)
		commands = append(commands, e.Command)
		if e.Command == girc.ERROR {
			break
		}
	}
	assert.Equal(t, []string{girc.RPL_WELCOME, girc.RPL_YOURHOST, "400", girc.ERROR}, commands)
}

func TestGateway_HTTPEndpoints(t *testing.T) {
	h := startServer(t, testConfig(), WithDialer(unreachable()))

	resp, err := http.Get(h.url("/health"))
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)

	resp, err = http.Get(h.url("/nonexistent"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(h.url("/status"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("GET", h.url("/status"), nil)
	req.Header.Set("Authorization", "Bearer test-token-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, status.Sessions)
	assert.Equal(t, "localhost:4242", status.Core)
}

func TestGateway_ShutdownDisconnectsClients(t *testing.T) {
	hl := &hookLog{}
	hm := hooks.NewManager(logging.New(nil, "silent"))
	hm.On(hooks.EventGatewayStart, "test", hl.handler)
	hm.On(hooks.EventGatewayStop, "test", hl.handler)

	h := startServer(t, testConfig(), WithDialer(unreachable()), WithHooks(hm))
	c := dialIRC(t, h)
	c.send("PING :x")
	c.expect(girc.PONG)

	h.cancel()
	assert.Equal(t, "Gateway shutting down", last(c.expect(girc.ERROR)))

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, hl.names())
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.Mode = "loud"
	_, err := New(cfg, logging.New(nil, "silent"))
	assert.Error(t, err)
}

func TestCoreDialer(t *testing.T) {
	d := CoreDialer(config.CoreConfig{Address: "core.example:4242"})
	assert.False(t, d.Encrypted())

	d = CoreDialer(config.CoreConfig{Address: "core.example:4242", TLS: config.CoreTLS{Enabled: true}})
	require.True(t, d.Encrypted())
	assert.Equal(t, "core.example", d.TLS.ServerName)
}
