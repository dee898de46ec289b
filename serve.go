package websocket

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/coalflow/websocket/transport"
)

// Handler processes one accepted and handshaken connection. It runs in its
// own goroutine and owns conn for the handler's lifetime; once it returns,
// the server tears conn down if the handler has not already done so.
type Handler func(conn *Conn)

// ServerHandle is the accept loop started by Serve or ServeTLS. Close stops
// it from accepting new connections; Wait blocks until every in-flight
// Handler call has returned.
type ServerHandle struct {
	ln net.Listener
	wg sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Serve opens a listener on addr and, for every connection that completes
// the opening handshake, runs handler in its own goroutine. It returns as
// soon as the listener is up; opts configures the Conn built for each
// accepted connection the same way they would configure a call to Accept,
// so WithSubprotocols, WithMaxMessageSize, and the rest apply uniformly
// across the server.
func Serve(ctx context.Context, addr string, handler Handler, opts ...Option) (*ServerHandle, error) {
	ln, err := transport.Listen(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newServerHandle(ln, handler, opts), nil
}

// ServeTLS is Serve over a listener that terminates TLS using cfg before
// any connection reaches the opening handshake.
func ServeTLS(ctx context.Context, addr string, cfg *tls.Config, handler Handler, opts ...Option) (*ServerHandle, error) {
	ln, err := transport.ListenTLS(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	return newServerHandle(ln, handler, opts), nil
}

func newServerHandle(ln net.Listener, handler Handler, opts []Option) *ServerHandle {
	h := &ServerHandle{ln: ln}
	h.wg.Add(1)
	go h.acceptLoop(handler, opts)
	return h
}

// acceptLoop runs one goroutine per accepted connection until the listener
// is closed, so callers need not hand-roll an accept loop against
// transport.Listen.
func (h *ServerHandle) acceptLoop(handler Handler, opts []Option) {
	defer h.wg.Done()
	for {
		nc, err := h.ln.Accept()
		if err != nil {
			return
		}
		h.wg.Add(1)
		go h.handleConn(nc, handler, opts)
	}
}

func (h *ServerHandle) handleConn(nc net.Conn, handler Handler, opts []Option) {
	defer h.wg.Done()
	conn, err := Accept(nc, opts...)
	if err != nil {
		nc.Close()
		return
	}
	defer conn.teardown()
	handler(conn)
}

// Addr returns the address the server is listening on.
func (h *ServerHandle) Addr() net.Addr { return h.ln.Addr() }

// Close stops the accept loop by closing the listener; it does not wait for
// connections already in flight to finish. Call Wait afterward to block
// until they have.
func (h *ServerHandle) Close() error {
	h.closeOnce.Do(func() { h.closeErr = h.ln.Close() })
	return h.closeErr
}

// Wait blocks until the accept loop and every Handler it started have
// returned. It only returns once Close has been called on another
// goroutine, since otherwise the accept loop never exits.
func (h *ServerHandle) Wait() {
	h.wg.Wait()
}
