package websocket

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"

	"github.com/coalflow/websocket/transport"
	"github.com/coalflow/websocket/wserrors"
)

// Conn is a single WebSocket connection: the opening handshake has already
// completed (or AutoHandshake is disabled and the caller drives it), and
// Send/Recv exchange application messages while Ping/Pong and the closing
// handshake are handled transparently. A Conn is meant to be driven by one
// goroutine calling Recv in a loop and any number of goroutines calling
// Send/Ping/Close — the latter are serialized internally, but Recv is not
// safe to call concurrently with itself.
type Conn struct {
	stream transport.Stream
	role   Role
	opts   *Options

	br   *bufio.Reader
	brMu sync.Mutex
	sm   *stateMachine
	asm  *messageAssembler

	subprotocol string

	writeMu sync.Mutex

	fragMu      sync.Mutex
	fragmenting bool

	pingMu       sync.Mutex
	pendingPings map[string]time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(stream transport.Stream, role Role, o *Options, subprotocol string) *Conn {
	return &Conn{
		stream:       stream,
		role:         role,
		opts:         o,
		br:           bufio.NewReader(stream),
		sm:           newStateMachine(role),
		asm:          newMessageAssembler(o.MaxMessageSize),
		subprotocol:  subprotocol,
		pendingPings: make(map[string]time.Time),
		closed:       make(chan struct{}),
	}
}

// Dial connects to a ws:// or wss:// URL and, unless WithManualHandshake was
// given, performs the opening handshake before returning.
func Dial(ctx context.Context, rawurl string, opts ...Option) (*Conn, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	var (
		stream transport.Stream
		o      = NewOptions(RoleClient, opts...)
	)

	host := u.Host
	switch u.Scheme {
	case "ws":
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, "80")
		}
		stream, err = transport.Dial(ctx, host)
		if err != nil {
			return nil, err
		}
	case "wss":
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, "443")
		}
		stream, err = transport.DialTLS(ctx, host, o.TLSConfig)
		if err != nil {
			return nil, err
		}
	default:
		return nil, wserrors.ErrInvalidAddress
	}

	c := newConn(stream, RoleClient, o, "")

	if o.AutoHandshake {
		res, err := clientHandshake(stream, c.br, u, o)
		if err != nil {
			stream.Close()
			return nil, err
		}
		c.subprotocol = res.Subprotocol
		c.sm.HandshakeDone()
	}

	return c, nil
}

// Accept performs the server side of the opening handshake over an already
// accepted transport.Stream (unless WithManualHandshake was given) and
// returns the resulting Conn.
func Accept(stream transport.Stream, opts ...Option) (*Conn, error) {
	o := NewOptions(RoleServer, opts...)
	c := newConn(stream, RoleServer, o, "")

	if o.AutoHandshake {
		res, err := serverHandshake(stream, c.br, o)
		if err != nil {
			stream.Close()
			return nil, err
		}
		c.subprotocol = res.Subprotocol
		c.sm.HandshakeDone()
	}

	return c, nil
}

// Handshake drives the opening handshake manually; it is only meaningful
// when the Conn was built with WithManualHandshake.
func (c *Conn) Handshake(ctx context.Context, u *url.URL) error {
	var (
		res handshakeResult
		err error
	)
	if c.role == RoleClient {
		res, err = clientHandshake(c.stream, c.br, u, c.opts)
	} else {
		res, err = serverHandshake(c.stream, c.br, c.opts)
	}
	if err != nil {
		return err
	}
	c.subprotocol = res.Subprotocol
	c.sm.HandshakeDone()
	return nil
}

// Subprotocol returns the subprotocol negotiated during the opening
// handshake, or "" if none was.
func (c *Conn) Subprotocol() string { return c.subprotocol }

func (c *Conn) LocalAddr() net.Addr  { return c.stream.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.stream.RemoteAddr() }

// Role reports whether this Conn is playing the client or server role.
func (c *Conn) Role() Role { return c.role }

func setDeadline(ctx context.Context, set func(time.Time) error) {
	if dl, ok := ctx.Deadline(); ok {
		set(dl)
	} else {
		set(time.Time{})
	}
}

// readFrame reads the next frame off c.br. It is called both from Recv's
// loop and from Close's wait for the peer's echo, which run on different
// goroutines in the usage pattern documented on Conn; brMu serializes those
// two callers so neither ever reads c.br while the other is mid-read.
func (c *Conn) readFrame() (*Frame, error) {
	c.brMu.Lock()
	defer c.brMu.Unlock()
	f := acquireFrame()
	if _, err := f.ReadFrom(c.br, c.opts.MaxFrameSize); err != nil {
		releaseFrame(f)
		return nil, err
	}
	return f, nil
}

// writeFrame masks f if we are the client and writes it to the transport.
// The frame is serialized into a pooled buffer first, so each frame goes out
// in a single Write without allocating a fresh buffer per frame.
func (c *Conn) writeFrame(ctx context.Context, f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	setDeadline(ctx, c.stream.SetWriteDeadline)

	if c.role == RoleClient {
		f.Mask()
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if _, err := f.WriteTo(bb); err != nil {
		return err
	}
	_, err := c.stream.Write(bb.B)
	return err
}

func (c *Conn) writeDataFrame(ctx context.Context, opcode Opcode, data []byte, fin bool) error {
	if !c.sm.CanSend() {
		return wserrors.ErrSendAfterClose
	}
	f := acquireFrame()
	defer releaseFrame(f)
	f.SetOpcode(opcode)
	if fin {
		f.SetFin()
	}
	f.SetPayload(data)
	return c.writeFrame(ctx, f)
}

// Send writes data as a single, unfragmented message of type mt.
func (c *Conn) Send(ctx context.Context, mt MessageType, data []byte) error {
	c.fragMu.Lock()
	busy := c.fragmenting
	c.fragMu.Unlock()
	if busy {
		return wserrors.ErrConcurrentSend
	}
	if c.opts.MaxMessageSize > 0 && len(data) > c.opts.MaxMessageSize {
		return wserrors.ErrMessageTooBig
	}
	return c.writeDataFrame(ctx, Opcode(mt), data, true)
}

// SendFragment starts a fragmented message of type mt with its first
// fragment, data. The message must be completed with one or more calls to
// SendContinuation, the last of which passes fin=true. No other Send* call
// may be made on this Conn until the fragmented message is completed.
func (c *Conn) SendFragment(ctx context.Context, mt MessageType, data []byte) error {
	c.fragMu.Lock()
	if c.fragmenting {
		c.fragMu.Unlock()
		return wserrors.ErrConcurrentSend
	}
	c.fragmenting = true
	c.fragMu.Unlock()

	if err := c.writeDataFrame(ctx, Opcode(mt), data, false); err != nil {
		c.fragMu.Lock()
		c.fragmenting = false
		c.fragMu.Unlock()
		return err
	}
	return nil
}

// SendContinuation sends the next fragment of a message started with
// SendFragment. Pass fin=true on the last fragment.
func (c *Conn) SendContinuation(ctx context.Context, data []byte, fin bool) error {
	c.fragMu.Lock()
	if !c.fragmenting {
		c.fragMu.Unlock()
		return wserrors.ErrNoFragmentInProgress
	}
	if fin {
		c.fragmenting = false
	}
	c.fragMu.Unlock()

	return c.writeDataFrame(ctx, OpcodeContinuation, data, fin)
}

// Ping sends an unsolicited Ping carrying payload, which must be no larger
// than MaxControlFramePayload. If the Conn was built with WithRTTRecorder,
// the matching Pong's round-trip time is recorded against it.
func (c *Conn) Ping(ctx context.Context, payload []byte) error {
	if len(payload) > MaxControlFramePayload {
		return wserrors.ErrControlFrameTooBig
	}
	if !c.sm.CanSend() {
		return wserrors.ErrSendAfterClose
	}

	if c.opts.RTT != nil {
		c.pingMu.Lock()
		c.pendingPings[string(payload)] = time.Now()
		c.pingMu.Unlock()
	}

	f := acquireFrame()
	defer releaseFrame(f)
	f.SetOpcode(OpcodePing)
	f.SetFin()
	f.SetPayload(payload)
	return c.writeFrame(ctx, f)
}

func (c *Conn) sendPong(ctx context.Context, payload []byte) error {
	f := acquireFrame()
	defer releaseFrame(f)
	f.SetOpcode(OpcodePong)
	f.SetFin()
	f.SetPayload(payload)
	return c.writeFrame(ctx, f)
}

func (c *Conn) observePong(payload []byte) {
	c.pingMu.Lock()
	sent, ok := c.pendingPings[string(payload)]
	if ok {
		delete(c.pendingPings, string(payload))
	}
	c.pingMu.Unlock()
	if ok {
		c.opts.RTT.Record(time.Since(sent))
	}
}

// Close initiates the closing handshake, blocking until the peer's echo
// arrives or opts.CloseTimeout elapses, then tears down the transport.
func (c *Conn) Close(ctx context.Context, code CloseCode, reason string) error {
	if err := c.sm.InitiateClose(code, reason); err != nil {
		if err == wserrors.ErrInvalidCloseCode {
			return err
		}
		return c.teardown()
	}

	f := acquireFrame()
	f.SetOpcode(OpcodeClose)
	f.SetFin()
	f.SetPayload(EncodeClosePayload(code, reason))
	werr := c.writeFrame(ctx, f)
	releaseFrame(f)
	if werr != nil {
		c.teardown()
		return werr
	}

	deadline := time.Now().Add(c.opts.CloseTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	c.stream.SetReadDeadline(deadline)

	for {
		in, rerr := c.readFrame()
		if rerr != nil {
			break
		}
		opcode := in.Opcode()
		releaseFrame(in)
		if opcode.IsClose() {
			break
		}
	}

	return c.teardown()
}

func (c *Conn) echoClose(ctx context.Context, cc CloseCode, reason string) {
	f := acquireFrame()
	defer releaseFrame(f)
	f.SetOpcode(OpcodeClose)
	f.SetFin()
	f.SetPayload(EncodeClosePayload(cc, reason))
	c.writeFrame(ctx, f)
}

// failProtocol sends a best-effort Close frame carrying cc/reason and tears
// the connection down, used when a frame or message violates the protocol.
func (c *Conn) failProtocol(ctx context.Context, cc CloseCode, reason string) {
	if err := c.sm.InitiateClose(cc, reason); err == nil {
		c.echoClose(ctx, cc, reason)
	}
	c.teardown()
}

func (c *Conn) teardown() error {
	c.sm.Closed()
	c.asm.Abandon()
	c.closeOnce.Do(func() { close(c.closed) })
	return c.stream.Close()
}

// Closed returns a channel that is closed once the connection has been torn
// down: by Close, or by Recv after a close handshake, a protocol violation,
// or a transport error. A failed write in Send or Ping does not close it.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

func closeCodeFor(err error) CloseCode {
	switch err {
	case wserrors.ErrInvalidUTF8:
		return CloseInvalidPayload
	case wserrors.ErrMessageTooBig, wserrors.ErrPayloadTooBig:
		return CloseMessageTooBig
	default:
		return CloseProtocolError
	}
}

// frameReadCloseCode reports the close code a ReadFrom failure should be
// reported to the peer with, for the subset of its errors that are
// protocol violations rather than transport failures (a reset connection,
// an EOF, a blown deadline); the latter have no peer left to tell.
func frameReadCloseCode(err error) (CloseCode, bool) {
	switch err {
	case wserrors.ErrPayloadTooBig:
		return CloseMessageTooBig, true
	case wserrors.ErrInvalidPayloadLength, wserrors.ErrMinimalLengthViolation,
		wserrors.ErrInvalidControlFrame, wserrors.ErrControlFrameTooBig:
		return CloseProtocolError, true
	default:
		return 0, false
	}
}

// parseClosePayload validates an incoming Close frame's payload against the
// rules of RFC 6455 section 5.5.1: a payload of exactly one byte is illegal
// (too short to carry a code), a non-empty payload's code must be one
// endpoints are permitted to send, and the trailing reason must be valid
// UTF-8.
func parseClosePayload(b []byte) (CloseCode, string, error) {
	if len(b) == 1 {
		return 0, "", wserrors.ErrInvalidCloseCode
	}
	cc, reason := DecodeClosePayload(b)
	if len(b) >= 2 && !ValidCloseCode(cc) {
		return 0, "", wserrors.ErrInvalidCloseCode
	}
	if !utf8.ValidString(reason) {
		return 0, "", wserrors.ErrInvalidUTF8
	}
	return cc, reason, nil
}

// Recv reads and returns the next complete application message, handling
// Ping/Pong and the closing handshake transparently. Once the connection
// closes, whether because the peer initiated the close handshake, we did
// via Close, or the transport errored, Recv returns a non-nil error — a
// *CloseError for a clean close, a wserrors sentinel for a protocol
// violation, the underlying I/O error otherwise.
func (c *Conn) Recv(ctx context.Context) (*Message, error) {
	for {
		select {
		case <-c.closed:
			cc, reason := c.sm.CloseInfo()
			return nil, &CloseError{Code: cc, Reason: reason}
		default:
		}

		setDeadline(ctx, c.stream.SetReadDeadline)

		f, err := c.readFrame()
		if err != nil {
			if cc, ok := frameReadCloseCode(err); ok {
				c.failProtocol(ctx, cc, err.Error())
			} else {
				c.teardown()
			}
			return nil, err
		}

		opcode := f.Opcode()

		if f.IsRSV1() || f.IsRSV2() || f.IsRSV3() {
			releaseFrame(f)
			c.failProtocol(ctx, CloseProtocolError, "non-zero reserved bits")
			return nil, wserrors.ErrNonZeroReservedBits
		}
		if c.role == RoleServer && !f.IsMasked() {
			releaseFrame(f)
			c.failProtocol(ctx, CloseProtocolError, "unmasked frame from client")
			return nil, wserrors.ErrUnmaskedFrameFromClient
		}
		if c.role == RoleClient && f.IsMasked() {
			releaseFrame(f)
			c.failProtocol(ctx, CloseProtocolError, "masked frame from server")
			return nil, wserrors.ErrMaskedFrameFromServer
		}

		switch {
		case opcode.IsReserved():
			releaseFrame(f)
			c.failProtocol(ctx, CloseProtocolError, "reserved opcode")
			return nil, wserrors.ErrReservedOpcode

		case opcode.IsPing():
			payload := append([]byte(nil), f.Payload()...)
			releaseFrame(f)
			if c.sm.CanSend() {
				if err := c.sendPong(ctx, payload); err != nil {
					c.teardown()
					return nil, err
				}
			}

		case opcode.IsPong():
			if c.opts.RTT != nil {
				c.observePong(f.Payload())
			}
			releaseFrame(f)

		case opcode.IsClose():
			cc, reason, perr := parseClosePayload(f.Payload())
			releaseFrame(f)
			if perr != nil {
				c.failProtocol(ctx, CloseProtocolError, perr.Error())
				return nil, perr
			}

			switch c.sm.ObserveClose(cc, reason) {
			case closeActionEcho:
				c.echoClose(ctx, cc, reason)
				c.teardown()
				return nil, &CloseError{Code: cc, Reason: reason}
			case closeActionAcked:
				c.teardown()
				ccInfo, reasonInfo := c.sm.CloseInfo()
				return nil, &CloseError{Code: ccInfo, Reason: reasonInfo}
			default: // closeActionIgnore
			}

		default: // data frame: continuation, text, or binary
			if !c.sm.CanReceiveData() {
				releaseFrame(f)
				continue
			}
			msg, aerr := c.asm.Push(f)
			releaseFrame(f)
			if aerr != nil {
				cc := closeCodeFor(aerr)
				c.failProtocol(ctx, cc, aerr.Error())
				return nil, aerr
			}
			if msg != nil {
				return msg, nil
			}
		}
	}
}
