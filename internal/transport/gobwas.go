package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSSocket is a Socket/Reader implementation over a raw net.Conn already
// upgraded to a websocket by the host, using gobwas/ws the way the
// teacher's internal/transport package does for its own connections. It
// carries one JSON-or-chunk text frame per websocket text frame.
type WSSocket struct {
	conn net.Conn

	writeMu sync.Mutex
	closed  bool
}

// NewWSSocket wraps an already-upgraded connection.
func NewWSSocket(conn net.Conn) *WSSocket {
	return &WSSocket{conn: conn}
}

// Send writes frame as a single websocket text message.
func (s *WSSocket) Send(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("transport: send on closed socket")
	}
	if err := wsutil.WriteServerMessage(s.conn, ws.OpText, []byte(frame)); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Idempotent.
func (s *WSSocket) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// ReadFrame reads the next websocket text frame as a wire frame string.
// Ping/pong/close control frames are handled transparently; only text
// payloads are surfaced to the caller.
func (s *WSSocket) ReadFrame() (string, error) {
	for {
		data, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("transport: read frame: %w", err)
		}
		switch op {
		case ws.OpText, ws.OpBinary:
			return string(data), nil
		case ws.OpClose:
			return "", io.EOF
		default:
			continue
		}
	}
}
