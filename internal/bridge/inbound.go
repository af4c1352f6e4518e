package bridge

import (
	"bytes"
	"io"
	"sync"
)

// Inbound buffers bytes received from the core. The transport reader
// appends, while the negotiator and later the peer consume. Read blocks
// until data or an error is available.
type Inbound struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  bytes.Buffer
	err  error
}

func NewInbound() *Inbound {
	in := &Inbound{}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Write appends p. It fails once the queue has been closed.
func (in *Inbound) Write(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err != nil {
		return 0, in.err
	}
	n, _ := in.buf.Write(p)
	in.cond.Broadcast()
	return n, nil
}

// Read returns buffered bytes, blocking while the queue is empty and open.
// Buffered data is drained before the close error is reported.
func (in *Inbound) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for in.buf.Len() == 0 && in.err == nil {
		in.cond.Wait()
	}
	if in.buf.Len() > 0 {
		return in.buf.Read(p)
	}
	return 0, in.err
}

// Buffered reports how many bytes Read can return without blocking.
func (in *Inbound) Buffered() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buf.Len()
}

// CloseWithError wakes blocked readers. Later reads see err after the
// buffer drains. A nil err means io.EOF. Only the first call has effect.
func (in *Inbound) CloseWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err == nil {
		in.err = err
		in.cond.Broadcast()
	}
}
