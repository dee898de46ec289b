// Package transport provides the byte-stream adapters the websocket engine
// is dialed and accepted over: plain TCP and TLS, with the socket-level
// tuning (TCP_NODELAY, SO_REUSEADDR, SO_REUSEPORT) the engine's caller
// usually wants but net.Dial does not expose directly.
package transport

import (
	"io"
	"net"
	"time"
)

// Stream is the byte-stream interface the websocket engine is built
// against. net.Conn satisfies it; tests commonly use net.Pipe.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}
