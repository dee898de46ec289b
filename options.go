package websocket

import (
	"crypto/tls"
	"time"

	"github.com/coalflow/websocket/wsmetrics"
)

const (
	defaultHandshakeTimeout     = 10 * time.Second
	defaultHandshakeHeaderLimit = 8192
	defaultMaxFrameSize         = 1 * 1024 * 1024
	defaultMaxMessageSize       = 16 * 1024 * 1024
	defaultCloseTimeout         = 10 * time.Second
)

// Options configures a Conn. The zero value is not meant to be used
// directly; build one with NewOptions and a chain of Option funcs.
type Options struct {
	Role Role

	MaxFrameSize   int
	MaxMessageSize int

	CloseTimeout         time.Duration
	HandshakeTimeout     time.Duration
	HandshakeHeaderLimit int

	Subprotocols []string
	Origin       string

	TLSConfig *tls.Config

	// IdlePingInterval is carried in Options but not read by Conn: Conn
	// starts no timer and sends no Ping on its own, whatever its value.
	// Periodic pings happen only when the caller calls Ping itself.
	IdlePingInterval time.Duration

	// AutoHandshake controls whether Dial/Accept perform the opening
	// handshake themselves. When false, the caller must drive the
	// handshake manually via Conn's Handshake method before Send/Recv may
	// be used — mirroring the reference implementation's auto_handshake
	// flag for callers that need to inspect or rewrite the handshake
	// request/response first.
	AutoHandshake bool

	// RTT, if non-nil, receives a sample on every completed Ping/Pong
	// round trip.
	RTT *wsmetrics.RTTRecorder
}

// Option mutates an Options value being built up by NewOptions.
type Option func(*Options)

// NewOptions builds an Options value with spec defaults applied, then
// overridden left-to-right by opts.
func NewOptions(role Role, opts ...Option) *Options {
	o := &Options{
		Role:                 role,
		MaxFrameSize:         defaultMaxFrameSize,
		MaxMessageSize:       defaultMaxMessageSize,
		CloseTimeout:         defaultCloseTimeout,
		HandshakeTimeout:     defaultHandshakeTimeout,
		HandshakeHeaderLimit: defaultHandshakeHeaderLimit,
		AutoHandshake:        true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMaxFrameSize caps the payload size of any single frame.
func WithMaxFrameSize(n int) Option {
	return func(o *Options) { o.MaxFrameSize = n }
}

// WithMaxMessageSize caps the total size of a reassembled message, counted
// across all of its fragments.
func WithMaxMessageSize(n int) Option {
	return func(o *Options) { o.MaxMessageSize = n }
}

// WithCloseTimeout bounds how long Close waits for the peer's echo before
// giving up and tearing down the transport unilaterally.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *Options) { o.CloseTimeout = d }
}

// WithHandshakeTimeout bounds how long the opening handshake may take.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithHandshakeHeaderLimit caps the number of bytes read while parsing the
// handshake request or response line and headers.
func WithHandshakeHeaderLimit(n int) Option {
	return func(o *Options) { o.HandshakeHeaderLimit = n }
}

// WithSubprotocols sets the ordered list of subprotocols a client offers, or
// the ordered list of subprotocols a server is willing to accept.
func WithSubprotocols(protocols ...string) Option {
	return func(o *Options) { o.Subprotocols = protocols }
}

// WithOrigin sets the Origin header a client sends during the handshake.
// Left empty, no Origin header is sent.
func WithOrigin(origin string) Option {
	return func(o *Options) { o.Origin = origin }
}

// WithTLSConfig supplies the TLS configuration used by Dial when connecting
// to a wss:// address.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = cfg }
}

// WithIdlePingInterval sets Options.IdlePingInterval. Conn does not act on
// it; no unsolicited pings are sent unless the caller calls Ping.
func WithIdlePingInterval(d time.Duration) Option {
	return func(o *Options) { o.IdlePingInterval = d }
}

// WithManualHandshake disables the automatic opening handshake, requiring the
// caller to drive it explicitly.
func WithManualHandshake() Option {
	return func(o *Options) { o.AutoHandshake = false }
}

// WithRTTRecorder records every Ping/Pong round trip into rec.
func WithRTTRecorder(rec *wsmetrics.RTTRecorder) Option {
	return func(o *Options) { o.RTT = rec }
}
