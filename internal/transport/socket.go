// Package transport defines the narrow boundary between the sync core
// and the outer HTTP/websocket layer: the Socket contract a session
// needs, a gobwas/ws implementation of it (WSSocket), and a Server that
// performs the websocket handshake and routes each connection to a room
// by its "/rooms/<id>" path. CORS and auth are not handled here.
package transport

// Socket is the narrow interface a Session needs from whatever carries
// bytes to and from one connected client. Frames are already-encoded wire
// text (a complete JSON message or one chunk, per internal/wire); Socket
// implementations do not interpret their contents.
type Socket interface {
	// Send writes one outbound frame. Implementations should be safe to
	// call from the room's single executor goroutine only; Session does
	// not call Send concurrently with itself.
	Send(frame string) error

	// Close closes the underlying connection. Idempotent.
	Close() error
}

// Reader is the inbound half: a source of raw text frames. Server's read
// loop (handleConnection) pulls frames from a WSSocket and forwards them
// to the room via Room.HandleMessage after wire.Assembler has reassembled
// them; the room itself never reads frames.
type Reader interface {
	// ReadFrame blocks until one frame is available, the socket closes
	// (returning io.EOF), or an error occurs.
	ReadFrame() (string, error)
}
