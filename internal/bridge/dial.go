package bridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// Dialer opens the byte stream to the core.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
	// Encrypted reports whether connections are already encrypted, which
	// is announced in the capability probe.
	Encrypted() bool
}

// NetDialer dials TCP, optionally wrapped in TLS.
type NetDialer struct {
	Address string
	TLS     *tls.Config
}

func (d NetDialer) Dial(ctx context.Context) (net.Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, d.Address, err)
	}
	if d.TLS == nil {
		return c, nil
	}
	tc := tls.Client(c, d.TLS)
	if err := tc.HandshakeContext(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: tls handshake with %s: %w", ErrTransport, d.Address, err)
	}
	return tc, nil
}

func (d NetDialer) Encrypted() bool { return d.TLS != nil }

// DialerFunc adapts a plain function to an unencrypted Dialer.
type DialerFunc func(ctx context.Context) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (net.Conn, error) { return f(ctx) }

func (DialerFunc) Encrypted() bool { return false }
