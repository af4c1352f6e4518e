package bridge

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbound_BufferedAndRead(t *testing.T) {
	in := NewInbound()
	assert.Equal(t, 0, in.Buffered())

	_, err := in.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, in.Buffered())

	b := make([]byte, 2)
	n, err := in.Read(b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, in.Buffered())
}

func TestInbound_ReadBlocksUntilWrite(t *testing.T) {
	in := NewInbound()
	got := make(chan []byte)
	go func() {
		b := make([]byte, 8)
		n, _ := in.Read(b)
		got <- b[:n]
	}()

	select {
	case <-got:
		t.Fatal("read returned before any data")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := in.Write([]byte("abc"))
	require.NoError(t, err)
	select {
	case b := <-got:
		assert.Equal(t, []byte("abc"), b)
	case <-time.After(time.Second):
		t.Fatal("read did not wake up")
	}
}

func TestInbound_CloseDrainsFirst(t *testing.T) {
	in := NewInbound()
	_, _ = in.Write([]byte("xy"))
	in.CloseWithError(nil)
	in.CloseWithError(errors.New("ignored"))

	b, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, []byte("xy"), b)

	_, err = in.Write([]byte("z"))
	assert.ErrorIs(t, err, io.EOF)
}

func TestInbound_CloseWakesReader(t *testing.T) {
	in := NewInbound()
	done := make(chan error)
	go func() {
		_, err := in.Read(make([]byte, 4))
		done <- err
	}()

	boom := errors.New("reset")
	in.CloseWithError(boom)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("reader not woken")
	}
}
