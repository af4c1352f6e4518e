package gateway

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// maxLineLength covers an IRCv3 tag section plus a 512-byte message.
	maxLineLength = 16 * 1024
	writeTimeout  = 30 * time.Second
)

var errLineTooLong = errors.New("line too long")

// LineConn is a client transport that carries one IRC line at a time.
// Lines are exchanged without their CRLF terminator.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line []byte) error
	RemoteAddr() string
	Close() error
}

// tcpLineConn frames lines on a byte stream.
type tcpLineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner

	mu sync.Mutex
	w  *bufio.Writer
}

func newTCPLineConn(conn net.Conn) *tcpLineConn {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	return &tcpLineConn{conn: conn, scanner: sc, w: bufio.NewWriter(conn)}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		if errors.Is(err, bufio.ErrTooLong) {
			return "", errLineTooLong
		}
		if err == nil {
			err = net.ErrClosed
		}
		return "", err
	}
	return strings.TrimRight(c.scanner.Text(), "\r"), nil
}

func (c *tcpLineConn) WriteLine(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.w.Write(line); err != nil {
		return err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *tcpLineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *tcpLineConn) Close() error { return c.conn.Close() }

// wsLineConn carries IRC over WebSocket text frames, one line per frame.
// Frames holding several newline-separated lines are split.
type wsLineConn struct {
	conn    *websocket.Conn
	pending []string

	mu sync.Mutex
}

func newWSLineConn(conn *websocket.Conn) *wsLineConn {
	conn.SetReadLimit(maxLineLength)
	return &wsLineConn{conn: conn}
}

func (c *wsLineConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if typ != websocket.TextMessage {
			continue
		}
		for l := range strings.SplitSeq(string(msg), "\n") {
			if l = strings.TrimRight(l, "\r"); l != "" {
				c.pending = append(c.pending, l)
			}
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsLineConn) WriteLine(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, line)
}

func (c *wsLineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *wsLineConn) Close() error {
	c.mu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}
