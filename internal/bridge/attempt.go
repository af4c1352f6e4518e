package bridge

import (
	"net"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/logging"
)

// infoCode is the numeric used for progress lines.
const infoCode = girc.RPL_MYINFO

// attempt is one dialed connection. Its channels are only consulted while
// it is current, so a replaced attempt cannot deliver stale events.
type attempt struct {
	gen  uint64
	conn net.Conn
	in   *Inbound

	// readable is edge-triggered and coalesced: one pending signal at most.
	readable chan struct{}
	// gone carries the single read error that ends the attempt.
	gone chan error

	once sync.Once
	log  *logging.Logger
}

func newAttempt(gen uint64, c net.Conn, log *logging.Logger) *attempt {
	a := &attempt{
		gen:      gen,
		conn:     c,
		in:       NewInbound(),
		readable: make(chan struct{}, 1),
		gone:     make(chan error, 1),
		log:      log,
	}
	go a.readLoop()
	return a
}

func (a *attempt) readLoop() {
	buf := make([]byte, 32<<10)
	for {
		n, err := a.conn.Read(buf)
		if n > 0 {
			_, _ = a.in.Write(buf[:n])
			select {
			case a.readable <- struct{}{}:
			default:
			}
		}
		if err != nil {
			a.log.Debug().Uint64("attempt", a.gen).Err(err).Msg("transport closed")
			a.in.CloseWithError(err)
			a.gone <- err
			return
		}
	}
}

func (a *attempt) close() {
	a.once.Do(func() {
		a.conn.Close()
		a.in.CloseWithError(net.ErrClosed)
	})
}
