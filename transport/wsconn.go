package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// ErrProtocolViolation is returned from Read when a non-binary WebSocket
// frame reaches the adapter. Well-behaved peers only send Binary frames, so
// this only fires if a peer misbehaves.
var ErrProtocolViolation = errors.New("transport: non-binary websocket frame")

// WSConn adapts a *websocket.Conn into a net.Conn so that crypto/tls (and
// FramedConn) can run directly on top of the WebSocket's byte stream, the
// same layering as the original's WebSocketByteStream<W>: a Binary frame
// carries payload bytes, Close maps to io.EOF, and any other frame type
// is a protocol violation (original_source/secure-comms/src/axum_ws.rs).
type WSConn struct {
	ws *websocket.Conn

	readBuf []byte
}

// NewWSConn wraps ws.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Read implements io.Reader by serving bytes out of the current binary
// message, fetching a new message once the buffered one is exhausted.
func (c *WSConn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				_ = closeErr
				return 0, io.EOF
			}
			return 0, err
		}

		switch kind {
		case websocket.BinaryMessage:
			c.readBuf = data
		case websocket.CloseMessage:
			return 0, io.EOF
		default:
			return 0, ErrProtocolViolation
		}
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write implements io.Writer by sending p as a single Binary frame.
func (c *WSConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying WebSocket connection.
func (c *WSConn) Close() error {
	return c.ws.Close()
}

// LocalAddr returns the local network address.
func (c *WSConn) LocalAddr() net.Addr { return c.ws.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *WSConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// SetDeadline sets both the read and write deadlines.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

// SetReadDeadline sets the deadline for future Read calls.
func (c *WSConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// SetWriteDeadline sets the deadline for future Write calls.
func (c *WSConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

var _ net.Conn = (*WSConn)(nil)
