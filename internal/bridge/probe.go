package bridge

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/qbridge/internal/handshake"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/quassel"
)

// ProbeResult is what a core answered to the capability probe.
type ProbeResult struct {
	Candidate quassel.Candidate
	// Fallback is set when the core hung up on the probe, which is how a
	// core that only speaks the legacy protocol answers.
	Fallback bool
}

// Probe dials the core, sends the capability probe and reports the
// protocol the core picked. No login is attempted.
func Probe(ctx context.Context, d Dialer, log *logging.Logger, opts ...handshake.Option) (ProbeResult, error) {
	conn, err := d.Dial(ctx)
	if err != nil {
		return ProbeResult{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	neg := handshake.New(log.Sub("probe"), opts...)
	if err := neg.BeginProbe(conn, d.Encrypted()); err != nil {
		if ctx.Err() != nil {
			return ProbeResult{}, ctx.Err()
		}
		return ProbeResult{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	br := bufio.NewReader(conn)
	for neg.Probing() {
		if _, err := br.Peek(4); err != nil {
			if neg.OnDisconnect(err) {
				return ProbeResult{Candidate: quassel.LegacyCandidate(), Fallback: true}, nil
			}
			if ctx.Err() != nil {
				return ProbeResult{}, ctx.Err()
			}
			return ProbeResult{}, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if _, err := neg.OnBytesAvailable(br); err != nil {
			return ProbeResult{}, err
		}
	}

	c, _ := neg.Candidate()
	return ProbeResult{Candidate: c}, nil
}
