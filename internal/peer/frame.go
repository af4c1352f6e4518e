package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/soyeahso/qbridge/internal/quassel"
)

// MaxFrameSize bounds a single frame payload. The core never sends frames
// anywhere near this; anything larger means the stream is out of sync.
const MaxFrameSize = 64 << 20

// ReadFrame reads one length-prefixed frame. A clean end of stream between
// frames is reported as io.EOF; an end of stream inside a frame as
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", quassel.ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", quassel.ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}
