// Package bridge runs one bridged connection: it dials the core,
// negotiates the wire variant, logs in, synchronizes the chosen network
// and relays lines between the IRC client and the core.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/qbridge/internal/bootstrap"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/handshake"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/netsync"
	"github.com/soyeahso/qbridge/internal/peer"
	"github.com/soyeahso/qbridge/internal/quassel"
	"github.com/soyeahso/qbridge/internal/store"
	"github.com/soyeahso/qbridge/internal/translate"
	"github.com/soyeahso/qbridge/internal/version"
)

var (
	// ErrTransport wraps failures of the byte stream to the core.
	ErrTransport = errors.New("transport error")
	// ErrSessionClosed is returned by Send after the session has ended.
	ErrSessionClosed = errors.New("bridge: session closed")

	errCoreClosed = errors.New("core closed the connection")
)

// maxPending bounds the lines queued before the session binds a network.
const maxPending = 64

// Handler receives everything the session has to say to its owner. Calls
// come from the session goroutine, one at a time. A handler must not call
// Close.
type Handler interface {
	Lines(lines []domain.LineCommand)
	Status(s domain.Status)
}

// Config describes one bridged login.
type Config struct {
	// UserName is "user" or "user/<network-id>".
	UserName string
	Password string
	// Nick is the IRC client's nickname, used until the core reports ours.
	Nick          string
	Remote        string
	Mode          translate.Mode
	BacklogLimit  int
	ClientVersion string
	ClientDate    string
	// Features is the client feature mask sent with the registration.
	Features uint32
	// DataStreamFeatures and LegacyFeatures are proposed in the probe.
	DataStreamFeatures uint16
	LegacyFeatures     uint16
}

// Option configures a Session.
type Option func(*Session)

// WithState persists backlog cursors and buffers.
func WithState(st store.State) Option {
	return func(s *Session) { s.state = st }
}

// WithPeerFactory overrides how peers are built once negotiated.
func WithPeerFactory(f peer.Factory) Option {
	return func(s *Session) { s.factory = f }
}

// Session is the per-connection actor. All protocol state is owned by the
// goroutine started by Start.
type Session struct {
	cfg     Config
	dialer  Dialer
	h       Handler
	log     *logging.Logger
	factory peer.Factory
	state   store.State

	input     chan string
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	// mu serializes handler calls with Close and guards info.
	mu     sync.Mutex
	closed bool
	info   domain.SessionInfo

	// Owned by the session goroutine.
	gen       uint64
	att       *attempt
	neg       *handshake.Negotiator
	p         peer.Handle
	boot      *bootstrap.Bootstrapper
	tr        *translate.Translator
	syncer    *netsync.Syncer
	pending   []string
	status    domain.Status
	statusSet bool
	failed    bool
}

// New creates a session. Nothing happens until Start.
func New(cfg Config, d Dialer, h Handler, log *logging.Logger, opts ...Option) *Session {
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = version.ClientVersion()
	}
	if cfg.ClientDate == "" {
		cfg.ClientDate = version.ClientDate()
	}
	user, _ := bootstrap.ParseUserName(cfg.UserName)
	if cfg.Nick == "" {
		cfg.Nick = user
	}

	id := uuid.New().String()
	s := &Session{
		cfg:     cfg,
		dialer:  d,
		h:       h,
		input:   make(chan string, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		info: domain.SessionInfo{
			ID:        id,
			User:      user,
			Remote:    cfg.Remote,
			Nick:      cfg.Nick,
			StartedAt: time.Now().UTC(),
		},
	}
	s.log = log.Sub("bridge").With("session", id)
	for _, o := range opts {
		o(s)
	}
	if s.factory == nil {
		s.factory = peer.NewFactory(s.log)
	}
	if s.state == nil {
		s.state = store.NewMemoryState()
	}
	s.neg = handshake.New(s.log, handshake.WithFeatures(cfg.DataStreamFeatures, cfg.LegacyFeatures))
	s.tr = translate.New(user, cfg.Nick, cfg.Mode, s.log)
	return s
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.info.ID }

// Info returns a snapshot of the session.
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Done is closed when the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start dials the core and runs the session until it fails, the core
// hangs up, ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) {
	go s.run(ctx)
}

// Send queues a raw line from the IRC client.
func (s *Session) Send(line string) error {
	select {
	case <-s.closing:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.input <- line:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close ends the session. It is idempotent, and once it returns the
// handler receives nothing more.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.closing)
	})
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.setStatus(domain.StatusConnecting)
	if err := s.connect(ctx); err != nil {
		s.finish(ctx, err)
		return
	}

	for {
		var (
			readable <-chan struct{}
			gone     <-chan error
			events   <-chan quassel.Message
			perrs    <-chan error
		)
		// The transport is only consulted while a probe reply is due.
		if s.att != nil && s.neg.Probing() {
			readable, gone = s.att.readable, s.att.gone
		}
		if s.p != nil {
			events, perrs = s.p.Events(), s.p.Errors()
		}

		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-readable:
			err = s.onReadable()
		case e := <-gone:
			err = s.onGone(ctx, e)
		case m := <-events:
			err = s.onMessage(m)
		case e := <-perrs:
			err = s.onPeerError(e)
		case line := <-s.input:
			err = s.onInput(line)
		}
		if err != nil {
			s.finish(ctx, err)
			return
		}
	}
}

// connect opens a fresh attempt and starts the handshake on it.
func (s *Session) connect(ctx context.Context) error {
	c, err := s.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	s.gen++
	s.att = newAttempt(s.gen, c, s.log)
	s.log.Debug().Uint64("attempt", s.gen).Str("core", c.RemoteAddr().String()).Msg("connected to core")

	if err := s.neg.BeginProbe(c, s.dialer.Encrypted()); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if _, ok := s.neg.Candidate(); ok {
		return s.startPeer()
	}
	return nil
}

func (s *Session) onReadable() error {
	res, err := s.neg.OnBytesAvailable(s.att.in)
	if err != nil {
		return err
	}
	if res == handshake.ResultNegotiated {
		return s.startPeer()
	}
	return nil
}

// onGone handles the transport closing while a probe is outstanding. A
// reply that arrived just before the close still counts.
func (s *Session) onGone(ctx context.Context, err error) error {
	if s.att.in.Buffered() > 0 {
		if rerr := s.onReadable(); rerr != nil || !s.neg.Probing() {
			return rerr
		}
	}
	if !s.neg.OnDisconnect(err) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	s.log.Info().Uint64("attempt", s.gen).Msg("retrying with legacy protocol")
	s.att.close()
	s.att = nil
	s.neg.Reset()
	return s.connect(ctx)
}

func (s *Session) startPeer() error {
	p, err := s.neg.NewPeer(s.factory, s.att.in, s.att.conn)
	if err != nil {
		return err
	}
	s.p = p
	s.mu.Lock()
	s.info.Protocol = p.Protocol().String()
	s.mu.Unlock()

	s.boot = bootstrap.New(p, bootstrap.Config{
		UserName:      s.cfg.UserName,
		Password:      s.cfg.Password,
		ClientVersion: s.cfg.ClientVersion,
		ClientDate:    s.cfg.ClientDate,
		Encrypted:     s.dialer.Encrypted(),
		Compression:   p.Protocol().Compression,
		Features:      s.cfg.Features,
	}, reporter{s}, s.log)
	return s.boot.Start()
}

func (s *Session) onMessage(m quassel.Message) error {
	if s.syncer == nil {
		res, err := s.boot.Handle(m)
		if err != nil || res == nil {
			return err
		}
		return s.bind(res)
	}

	up, err := s.syncer.Handle(m)
	s.deliver(up.Lines)
	if up.Ready {
		s.setStatus(domain.StatusConnected)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (s *Session) bind(res *bootstrap.Result) error {
	s.mu.Lock()
	s.info.NetworkID = res.Network
	s.mu.Unlock()

	s.syncer = netsync.New(s.p, s.tr, s.state, s.boot.User(), s.cfg.BacklogLimit, s.log)
	if err := s.syncer.Start(res.Network, res.Buffers); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	pending := s.pending
	s.pending = nil
	for _, line := range pending {
		if err := s.onInput(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) onPeerError(err error) error {
	if errors.Is(err, io.EOF) && s.syncer != nil {
		return errCoreClosed
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func (s *Session) onInput(line string) error {
	if s.syncer == nil {
		if len(s.pending) < maxPending {
			s.pending = append(s.pending, line)
		} else {
			s.log.Warn().Msg("dropping input received before the session was bound")
		}
		return nil
	}

	act, err := s.tr.Outbound(line)
	if errors.Is(err, translate.ErrNoBuffer) {
		s.deliver([]domain.LineCommand{s.tr.Info("401", err.Error())})
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.syncer.SendInput(act); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// finish reports how the session ended. Cancellation and a clean hang-up
// end in Closed; everything else produces one error line and Error.
func (s *Session) finish(ctx context.Context, err error) {
	switch {
	case errors.Is(err, errCoreClosed), ctx.Err() != nil:
		s.log.Info().Err(err).Msg("session ended")
		s.setStatus(domain.StatusClosed)
	default:
		s.fail(err)
	}
}

func (s *Session) fail(err error) {
	if s.failed {
		return
	}
	s.failed = true
	text := describe(err)
	s.log.Warn().Err(err).Msg("session failed")

	s.mu.Lock()
	s.info.LastError = text
	s.mu.Unlock()

	s.deliver([]domain.LineCommand{s.tr.Info(translate.ErrUnknownError, text)})
	s.setStatus(domain.StatusError)
}

// describe turns a terminal error into the line shown to the user.
func describe(err error) string {
	if errors.Is(err, handshake.ErrProtocolUnsupported) {
		return "unsupported Quassel protocol"
	}
	return err.Error()
}

func (s *Session) teardown() {
	if s.p != nil {
		s.p.Close()
	}
	if s.att != nil {
		s.att.close()
	}
}

func (s *Session) deliver(lines []domain.LineCommand) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.h.Lines(lines)
}

func (s *Session) setStatus(st domain.Status) {
	if s.statusSet && s.status == st {
		return
	}
	s.status, s.statusSet = st, true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Status = st
	if s.closed {
		return
	}
	s.h.Status(st)
}

// reporter feeds bootstrap progress into the session's line sink.
type reporter struct{ s *Session }

func (r reporter) Status(st domain.Status) { r.s.setStatus(st) }

func (r reporter) Info(text string) {
	r.s.deliver([]domain.LineCommand{r.s.tr.Info(infoCode, text)})
}
