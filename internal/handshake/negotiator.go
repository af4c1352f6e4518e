// Package handshake negotiates the wire variant and compression with a
// Quassel core before any framed message is exchanged.
package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/peer"
	"github.com/soyeahso/qbridge/internal/quassel"
)

// ErrProtocolUnsupported means the core selected a variant we cannot speak.
var ErrProtocolUnsupported = errors.New("handshake: protocol unsupported")

// ErrNotNegotiated is returned by NewPeer before a candidate is committed.
var ErrNotNegotiated = errors.New("handshake: no candidate committed")

// ErrNotProbing is returned by BeginProbe when a probe is already in flight
// or a candidate has been committed.
var ErrNotProbing = errors.New("handshake: negotiator not idle")

// State of the negotiator.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateNegotiated
	StateLegacyFallbackPending
	StateUnsupported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateNegotiated:
		return "negotiated"
	case StateLegacyFallbackPending:
		return "legacy-fallback-pending"
	case StateUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result of feeding bytes to the negotiator.
type Result int

const (
	// ResultPending means no reply was consumed; wait for more bytes.
	ResultPending Result = iota
	// ResultNegotiated means Candidate is now set.
	ResultNegotiated
)

// Source is the inbound side of the transport as seen while probing.
type Source interface {
	io.Reader
	// Buffered reports how many bytes can be read without blocking.
	Buffered() int
}

// replyLen is the size of the capability reply word.
const replyLen = 4

// Negotiator drives the capability probe for one connection. It is not
// safe for concurrent use; the owning connection serializes calls.
type Negotiator struct {
	state       State
	candidate   quassel.Candidate
	legacy      bool
	dsFeatures  uint16
	legFeatures uint16
	log         *logging.Logger
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithFeatures sets the feature masks proposed for each variant.
func WithFeatures(dataStream, legacy uint16) Option {
	return func(n *Negotiator) {
		n.dsFeatures = dataStream
		n.legFeatures = legacy
	}
}

// New creates an idle negotiator.
func New(log *logging.Logger, opts ...Option) *Negotiator {
	n := &Negotiator{log: log.Sub("handshake")}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Negotiator) State() State { return n.state }

// Probing reports whether a probe reply is outstanding.
func (n *Negotiator) Probing() bool { return n.state == StateProbing }

// LegacyPinned reports whether the next BeginProbe skips probing.
func (n *Negotiator) LegacyPinned() bool { return n.legacy }

// Candidate returns the committed candidate. ok is false until the
// negotiator reaches StateNegotiated.
func (n *Negotiator) Candidate() (c quassel.Candidate, ok bool) {
	return n.candidate, n.state == StateNegotiated
}

// BeginProbe writes the capability word and the proposal list to w and
// returns without waiting for a reply. With legacy pinned it writes
// nothing and commits the legacy candidate directly.
func (n *Negotiator) BeginProbe(w io.Writer, encrypted bool) error {
	if n.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrNotProbing, n.state)
	}

	if n.legacy {
		n.candidate = quassel.LegacyCandidate()
		n.state = StateNegotiated
		n.log.Info().Str("candidate", n.candidate.String()).Msg("legacy pinned, skipping probe")
		return nil
	}

	buf := make([]byte, 0, 12)
	buf = binary.BigEndian.AppendUint32(buf, quassel.ProbeWord(encrypted))
	buf = binary.BigEndian.AppendUint32(buf, quassel.ProposalWord(quassel.DataStreamProtocol, n.dsFeatures, false))
	buf = binary.BigEndian.AppendUint32(buf, quassel.ProposalWord(quassel.LegacyProtocol, n.legFeatures, true))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("handshake: write probe: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("handshake: flush probe: %w", err)
		}
	}

	n.state = StateProbing
	n.log.Debug().Bool("encrypted", encrypted).Msg("probe sent")
	return nil
}

// OnBytesAvailable consumes the reply word once at least four bytes are
// buffered. With fewer bytes, or when not probing, it reads nothing.
func (n *Negotiator) OnBytesAvailable(src Source) (Result, error) {
	if n.state != StateProbing || src.Buffered() < replyLen {
		return ResultPending, nil
	}

	var b [replyLen]byte
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return ResultPending, fmt.Errorf("handshake: read reply: %w", err)
	}
	reply := quassel.Reply(binary.BigEndian.Uint32(b[:]))

	if !reply.Type().Known() {
		n.state = StateUnsupported
		n.log.Warn().Str("type", reply.Type().String()).Msg("core selected unknown protocol")
		return ResultPending, fmt.Errorf("%w: %s", ErrProtocolUnsupported, reply.Type())
	}

	n.candidate = quassel.CandidateFromReply(reply)
	n.state = StateNegotiated
	n.log.Info().Str("candidate", n.candidate.String()).Uint16("features", n.candidate.Features).Msg("negotiated")
	return ResultNegotiated, nil
}

// OnDisconnect classifies a transport disconnect. It returns true only
// when the core closed the connection cleanly while a probe was
// outstanding; the caller must then reconnect and call Reset. Every other
// case is a hard failure.
func (n *Negotiator) OnDisconnect(err error) bool {
	if n.state == StateProbing && errors.Is(err, io.EOF) {
		n.state = StateLegacyFallbackPending
		n.log.Info().Msg("core closed during probe, falling back to legacy")
		return true
	}
	return false
}

// Reset prepares for the reconnect after a legacy fallback.
func (n *Negotiator) Reset() {
	if n.state != StateLegacyFallbackPending {
		return
	}
	n.legacy = true
	n.state = StateIdle
	n.candidate = quassel.Candidate{}
}

// NewPeer builds the peer variant for the committed candidate. There is no
// peer without a committed candidate.
func (n *Negotiator) NewPeer(f peer.Factory, r io.Reader, w io.Writer) (peer.Handle, error) {
	c, ok := n.Candidate()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotNegotiated, n.state)
	}
	return f(c, r, w)
}
