// Package bootstrap drives a Quassel session from client registration to
// a bound network: register, login, session state, network selection.
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/LukaGiorgadze/gonull"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/quassel"
)

var (
	ErrClientDenied      = errors.New("client denied")
	ErrLoginFailed       = errors.New("login failed")
	ErrNetworkUnresolved = errors.New("network unresolved")
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrAmbiguousNetwork  = errors.New("ambiguous network")
	ErrFinished          = errors.New("bootstrap: already finished")
)

// unresolvedError carries the user-facing text of a failed network
// selection and matches both ErrNetworkUnresolved and its specific cause.
type unresolvedError struct {
	cause error
	text  string
}

func (e *unresolvedError) Error() string { return e.text }

func (e *unresolvedError) Is(target error) bool { return target == ErrNetworkUnresolved }

func (e *unresolvedError) Unwrap() error { return e.cause }

// Dispatcher sends messages to the core. peer.Handle satisfies it.
type Dispatcher interface {
	Dispatch(m quassel.Message) error
}

// Reporter receives status changes and informational text.
type Reporter interface {
	Status(s domain.Status)
	Info(text string)
}

// Config carries what the bootstrapper sends on the client's behalf.
type Config struct {
	// UserName is the raw user field, optionally "user/<network-id>".
	UserName      string
	Password      string
	ClientVersion string
	ClientDate    string
	Encrypted     bool
	Compression   bool
	Features      uint32
}

// Phase of the bootstrap sequence.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRegistering
	PhaseLoggingIn
	PhaseAwaitingSession
	PhaseBound
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRegistering:
		return "registering"
	case PhaseLoggingIn:
		return "logging-in"
	case PhaseAwaitingSession:
		return "awaiting-session"
	case PhaseBound:
		return "bound"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Result is produced once when the session binds to a network.
type Result struct {
	Network domain.NetworkID
	// Buffers holds the session's buffers that belong to Network.
	Buffers []domain.BufferInfo
	// Available lists every network the core offered.
	Available []domain.NetworkID
}

// Bootstrapper is the per-connection session state machine. Calls must be
// serialized by the owner.
type Bootstrapper struct {
	d        Dispatcher
	cfg      Config
	rep      Reporter
	log      *logging.Logger
	user     string
	selector gonull.Nullable[domain.NetworkID]
	phase    Phase
	network  domain.NetworkID
}

// New creates a bootstrapper over an established peer.
func New(d Dispatcher, cfg Config, rep Reporter, log *logging.Logger) *Bootstrapper {
	user, sel := ParseUserName(cfg.UserName)
	return &Bootstrapper{
		d:        d,
		cfg:      cfg,
		rep:      rep,
		log:      log.Sub("bootstrap"),
		user:     user,
		selector: sel,
	}
}

func (b *Bootstrapper) Phase() Phase { return b.phase }

// User is the core account name without any network selector.
func (b *Bootstrapper) User() string { return b.user }

// Network returns the bound network.
func (b *Bootstrapper) Network() (domain.NetworkID, bool) {
	return b.network, b.phase == PhaseBound
}

// Start dispatches the client registration.
func (b *Bootstrapper) Start() error {
	if b.phase != PhaseIdle {
		return ErrFinished
	}
	err := b.d.Dispatch(quassel.RegisterClient{
		ClientVersion:  b.cfg.ClientVersion,
		ClientDate:     b.cfg.ClientDate,
		UseSSL:         b.cfg.Encrypted,
		UseCompression: b.cfg.Compression,
		Features:       b.cfg.Features,
	})
	if err != nil {
		return b.fail(fmt.Errorf("register client: %w", err))
	}
	b.phase = PhaseRegistering
	return nil
}

// Handle consumes one handshake message. It returns a non-nil Result
// exactly once, when the session binds to a network. Any error is
// terminal. Messages that are not part of the handshake are ignored.
func (b *Bootstrapper) Handle(m quassel.Message) (*Result, error) {
	if b.phase == PhaseBound || b.phase == PhaseFailed {
		return nil, nil
	}

	switch msg := m.(type) {
	case quassel.ClientDenied:
		return nil, b.fail(fmt.Errorf("%w: %s", ErrClientDenied, msg.Reason))

	case quassel.ClientRegistered:
		b.rep.Status(domain.StatusConnecting)
		b.rep.Info("Welcome to Quassel")
		if err := b.d.Dispatch(quassel.Login{User: b.user, Password: b.cfg.Password}); err != nil {
			return nil, b.fail(fmt.Errorf("login: %w", err))
		}
		b.phase = PhaseLoggingIn
		b.log.Debug().Str("user", b.user).Bool("configured", msg.Configured).Msg("registered, logging in")
		return nil, nil

	case quassel.LoginFailed:
		return nil, b.fail(fmt.Errorf("%w: %s", ErrLoginFailed, msg.Reason))

	case quassel.LoginSuccess:
		b.phase = PhaseAwaitingSession
		return nil, nil

	case quassel.SessionState:
		return b.sessionState(msg)

	default:
		b.log.Debug().Str("type", fmt.Sprintf("%T", m)).Msg("ignoring message during bootstrap")
		return nil, nil
	}
}

func (b *Bootstrapper) sessionState(st quassel.SessionState) (*Result, error) {
	b.rep.Info(fmt.Sprintf("Available networks: (%s)", joinIDs(st.NetworkIDs)))

	id, err := ResolveNetwork(b.selector, st.NetworkIDs)
	if err != nil {
		return nil, b.fail(err)
	}

	res := &Result{Network: id, Available: st.NetworkIDs}
	for _, buf := range st.Buffers {
		if buf.NetworkID == id {
			res.Buffers = append(res.Buffers, buf)
		}
	}

	b.network = id
	b.phase = PhaseBound
	b.rep.Info(fmt.Sprintf("connected to network %d", id))
	b.rep.Info("synchronizing")
	b.log.Info().Str("network", id.String()).Int("buffers", len(res.Buffers)).Msg("session bound")
	return res, nil
}

func (b *Bootstrapper) fail(err error) error {
	b.phase = PhaseFailed
	b.log.Warn().Err(err).Msg("bootstrap failed")
	return err
}

// ParseUserName splits "user/<network-id>" into the account name, taken
// before the first '/', and a network selector, taken after the last '/'.
// Only a positive integer selector yields a valid Nullable; core network
// ids start at 1.
func ParseUserName(raw string) (string, gonull.Nullable[domain.NetworkID]) {
	var sel gonull.Nullable[domain.NetworkID]
	user, _, found := strings.Cut(raw, "/")
	if !found {
		return raw, sel
	}
	tail := raw[strings.LastIndex(raw, "/")+1:]
	n, err := strconv.ParseInt(tail, 10, 32)
	if err != nil || n <= 0 {
		return user, sel
	}
	return user, gonull.NewNullable(domain.NetworkID(n))
}

// ResolveNetwork picks the network to bind. An explicit selector must be
// among available; without one, exactly one network must be available.
func ResolveNetwork(selector gonull.Nullable[domain.NetworkID], available []domain.NetworkID) (domain.NetworkID, error) {
	if selector.Valid {
		for _, id := range available {
			if id == selector.Val {
				return id, nil
			}
		}
		return 0, &unresolvedError{
			cause: ErrUnknownNetwork,
			text:  fmt.Sprintf("unknown network: %d", selector.Val),
		}
	}
	if len(available) == 1 {
		return available[0], nil
	}
	return 0, &unresolvedError{
		cause: ErrAmbiguousNetwork,
		text:  "choose a network by qualifying the username with '/<network-id>'",
	}
}

func joinIDs(ids []domain.NetworkID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
