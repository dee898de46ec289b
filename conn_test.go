package websocket

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/coalflow/websocket/wserrors"
	"github.com/coalflow/websocket/wsmetrics"
)

func dialAcceptPair(t *testing.T, opts ...Option) (*Conn, *Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	type result struct {
		c   *Conn
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	clientOpts := append([]Option{WithHandshakeTimeout(2 * time.Second)}, opts...)
	serverOpts := append([]Option{WithHandshakeTimeout(2 * time.Second)}, opts...)

	u, err := url.Parse("ws://example.com/")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		c := newConn(clientConn, RoleClient, NewOptions(RoleClient, clientOpts...), "")
		res, err := clientHandshake(clientConn, c.br, u, c.opts)
		if err == nil {
			c.subprotocol = res.Subprotocol
			c.sm.HandshakeDone()
		}
		clientCh <- result{c, err}
	}()
	go func() {
		c := newConn(serverConn, RoleServer, NewOptions(RoleServer, serverOpts...), "")
		res, err := serverHandshake(serverConn, c.br, c.opts)
		if err == nil {
			c.subprotocol = res.Subprotocol
			c.sm.HandshakeDone()
		}
		serverCh <- result{c, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	if cr.err != nil {
		t.Fatalf("client side: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("server side: %v", sr.err)
	}
	return cr.c, sr.c
}

func TestConnSendRecvTextMessage(t *testing.T) {
	client, server := dialAcceptPair(t)
	defer client.teardown()
	defer server.teardown()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, err := server.Recv(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		if msg.Type != MessageText || string(msg.Data) != "hello" {
			t.Errorf("got %+v", msg)
		}
	}()

	if err := client.Send(ctx, MessageText, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	<-done
}

func TestConnFragmentedSend(t *testing.T) {
	client, server := dialAcceptPair(t)
	defer client.teardown()
	defer server.teardown()

	ctx := context.Background()
	result := make(chan *Message, 1)
	go func() {
		msg, err := server.Recv(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		result <- msg
	}()

	if err := client.SendFragment(ctx, MessageBinary, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := client.SendContinuation(ctx, []byte{3, 4}, false); err != nil {
		t.Fatal(err)
	}
	if err := client.SendContinuation(ctx, []byte{5}, true); err != nil {
		t.Fatal(err)
	}

	msg := <-result
	want := []byte{1, 2, 3, 4, 5}
	if string(msg.Data) != string(want) {
		t.Fatalf("got %v, want %v", msg.Data, want)
	}
}

func TestConnPingPongRTT(t *testing.T) {
	rec := wsmetrics.NewRTTRecorder()
	client, server := dialAcceptPair(t, WithRTTRecorder(rec))
	defer client.teardown()
	defer server.teardown()

	ctx := context.Background()
	go func() {
		server.Recv(ctx) // drives the Pong reply to the client's Ping
	}()

	if err := client.Ping(ctx, []byte("ping-1")); err != nil {
		t.Fatal(err)
	}

	// The client's own Recv loop observes the Pong and records the sample.
	recvDone := make(chan struct{})
	go func() {
		client.Recv(ctx)
		close(recvDone)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if rec.Snapshot().Count > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for an RTT sample")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConnRejectsNonZeroReservedBits(t *testing.T) {
	client, server := dialAcceptPair(t)
	defer client.teardown()
	defer server.teardown()

	ctx := context.Background()
	f := acquireFrame()
	f.SetOpcode(OpcodeText)
	f.SetFin()
	f.SetPayload([]byte("hi"))
	f.header[0] |= bitRSV1

	// net.Pipe is unbuffered: the server's write completes only once the
	// client reads it, and the client's protocol-error Close frame only once
	// the server reads that, so the server side runs on its own goroutine.
	writeErr := make(chan error, 1)
	go func() {
		err := server.writeFrame(ctx, f)
		releaseFrame(f)
		writeErr <- err
		server.Recv(ctx)
	}()

	if _, err := client.Recv(ctx); err != wserrors.ErrNonZeroReservedBits {
		t.Fatalf("got %v, want ErrNonZeroReservedBits", err)
	}
	if err := <-writeErr; err != nil {
		t.Fatal(err)
	}
}

func TestConnRejectsMaskedFrameFromServer(t *testing.T) {
	client, server := dialAcceptPair(t)
	defer client.teardown()
	defer server.teardown()

	ctx := context.Background()
	f := acquireFrame()
	f.SetOpcode(OpcodeText)
	f.SetFin()
	f.SetPayload([]byte("hi"))
	f.Mask() // a correctly-behaving server never does this

	// Server side on its own goroutine, for the same net.Pipe reason as in
	// TestConnRejectsNonZeroReservedBits.
	writeErr := make(chan error, 1)
	go func() {
		err := server.writeFrame(ctx, f)
		releaseFrame(f)
		writeErr <- err
		server.Recv(ctx)
	}()

	if _, err := client.Recv(ctx); err != wserrors.ErrMaskedFrameFromServer {
		t.Fatalf("got %v, want ErrMaskedFrameFromServer", err)
	}
	if err := <-writeErr; err != nil {
		t.Fatal(err)
	}
}

func TestConnCloseRejectsInvalidCode(t *testing.T) {
	client, server := dialAcceptPair(t)
	defer client.teardown()
	defer server.teardown()

	if err := client.Close(context.Background(), CloseNoStatus, ""); err == nil {
		t.Fatal("expected Close(CloseNoStatus, ...) to be rejected")
	}
}

// TestConnCloseConcurrentWithRecv exercises the documented usage pattern
// directly: one goroutine driving Recv in a loop while another calls Close
// on the same Conn. Both end up reading frames off the same bufio.Reader,
// so this is what would race under `go test -race` if brMu were removed
// from readFrame.
func TestConnCloseConcurrentWithRecv(t *testing.T) {
	client, server := dialAcceptPair(t)
	defer server.teardown()

	ctx := context.Background()
	serverDone := make(chan error, 1)
	go func() {
		_, err := server.Recv(ctx)
		serverDone <- err
	}()

	recvErrs := make(chan error, 1)
	go func() {
		var err error
		for {
			if _, err = client.Recv(ctx); err != nil {
				break
			}
		}
		recvErrs <- err
	}()

	closeErr := client.Close(ctx, CloseNormal, "bye")
	if closeErr != nil {
		t.Fatalf("Close returned %v", closeErr)
	}

	select {
	case err := <-recvErrs:
		if err == nil {
			t.Fatal("expected the concurrent Recv loop to end in an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the concurrent Recv loop to finish")
	}

	select {
	case err := <-serverDone:
		if err == nil {
			t.Fatal("expected server Recv to return a CloseError")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server Recv")
	}
}

func TestConnCloseHandshake(t *testing.T) {
	client, server := dialAcceptPair(t)

	ctx := context.Background()
	serverDone := make(chan error, 1)
	go func() {
		_, err := server.Recv(ctx)
		serverDone <- err
	}()

	if err := client.Close(ctx, CloseNormal, "done"); err != nil {
		t.Fatal(err)
	}

	err := <-serverDone
	if err == nil {
		t.Fatal("expected server Recv to return a CloseError")
	}
	var ce *CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *CloseError", err)
	}
	if ce.Code != CloseNormal || ce.Reason != "done" {
		t.Fatalf("got %+v", ce)
	}
}
