// Package peer provides the framed, optionally compressed message channel
// to a Quassel core once the wire variant has been negotiated.
package peer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/quassel"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("peer: closed")

// Handle is a live channel to the core.
type Handle interface {
	// Dispatch encodes and sends one message.
	Dispatch(m quassel.Message) error
	// Events yields decoded messages from the core in arrival order.
	Events() <-chan quassel.Message
	// Errors yields at most one error, after which Events stops.
	Errors() <-chan error
	// Close stops event delivery. It does not close the transport.
	Close() error
	Protocol() quassel.Candidate
}

// Factory builds a Handle for a committed candidate over r and w.
type Factory func(c quassel.Candidate, r io.Reader, w io.Writer) (Handle, error)

// DataStreamPeer speaks the modern QVariantList framing.
type DataStreamPeer struct{ *conn }

// LegacyPeer speaks the pre-probe QVariant framing.
type LegacyPeer struct{ *conn }

// New constructs the peer variant selected by c and starts reading.
func New(c quassel.Candidate, r io.Reader, w io.Writer, log *logging.Logger) (Handle, error) {
	codec, err := quassel.NewCodec(c.Type)
	if err != nil {
		return nil, err
	}
	cn, err := newConn(c, codec, r, w, log.Sub("peer"))
	if err != nil {
		return nil, err
	}
	var h Handle
	switch c.Type {
	case quassel.DataStreamProtocol:
		h = DataStreamPeer{cn}
	case quassel.LegacyProtocol:
		h = LegacyPeer{cn}
	default:
		return nil, fmt.Errorf("peer: no variant for %s", c.Type)
	}
	go cn.readLoop()
	return h, nil
}

// NewFactory binds a logger into a Factory.
func NewFactory(log *logging.Logger) Factory {
	return func(c quassel.Candidate, r io.Reader, w io.Writer) (Handle, error) {
		return New(c, r, w, log)
	}
}

type conn struct {
	cand  quassel.Candidate
	codec quassel.Codec
	log   *logging.Logger

	r io.Reader

	mu sync.Mutex // guards w and zw
	w  io.Writer
	zw *zlib.Writer

	events chan quassel.Message
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func newConn(c quassel.Candidate, codec quassel.Codec, r io.Reader, w io.Writer, log *logging.Logger) (*conn, error) {
	cn := &conn{
		cand:   c,
		codec:  codec,
		log:    log,
		r:      r,
		w:      w,
		events: make(chan quassel.Message, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	if c.Compression {
		zw, err := zlib.NewWriterLevel(w, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("peer: compressor: %w", err)
		}
		cn.zw = zw
		cn.w = zw
	}
	return cn, nil
}

func (c *conn) Protocol() quassel.Candidate    { return c.cand }
func (c *conn) Events() <-chan quassel.Message { return c.events }
func (c *conn) Errors() <-chan error           { return c.errs }

func (c *conn) Dispatch(m quassel.Message) error {
	if c.closed() {
		return ErrClosed
	}

	payload, err := c.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("peer: encode %T: %w", m, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteFrame(c.w, payload); err != nil {
		return fmt.Errorf("peer: write %T: %w", m, err)
	}
	if c.zw != nil {
		if err := c.zw.Flush(); err != nil {
			return fmt.Errorf("peer: flush: %w", err)
		}
	}
	c.log.Debug().Str("type", fmt.Sprintf("%T", m)).Int("bytes", len(payload)).Msg("dispatched")
	return nil
}

func (c *conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *conn) readLoop() {
	err := c.read()
	if c.closed() {
		return
	}
	select {
	case <-c.done:
	case c.errs <- err:
	}
}

func (c *conn) read() error {
	r := c.r
	if c.cand.Compression {
		zr, err := zlib.NewReader(r)
		if err != nil {
			return fmt.Errorf("peer: decompressor: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	for {
		payload, err := ReadFrame(r)
		if err != nil {
			return err
		}
		m, err := c.codec.Decode(payload)
		if err != nil {
			return fmt.Errorf("peer: decode: %w", err)
		}
		if c.closed() {
			return ErrClosed
		}
		select {
		case <-c.done:
			return ErrClosed
		case c.events <- m:
		}
	}
}
