package transport

// Options controls the socket-level behavior of Dial/Listen, mirroring the
// functional-options shape the rest of this module's configuration uses.
type Options struct {
	NoDelay   bool
	ReuseAddr bool
	ReusePort bool
}

// Option mutates an Options value being built up by a Dial/Listen call.
type Option func(*Options)

func buildOptions(opts []Option) Options {
	o := Options{NoDelay: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNoDelay toggles TCP_NODELAY. Enabled by default, since a WebSocket
// connection is typically latency- rather than throughput-sensitive.
func WithNoDelay(v bool) Option {
	return func(o *Options) { o.NoDelay = v }
}

// WithReuseAddr sets SO_REUSEADDR on a listening socket.
func WithReuseAddr(v bool) Option {
	return func(o *Options) { o.ReuseAddr = v }
}

// WithReusePort sets SO_REUSEPORT on a listening socket, letting several
// processes or goroutines bind the same port and let the kernel load-balance
// accepted connections across them.
func WithReusePort(v bool) Option {
	return func(o *Options) { o.ReusePort = v }
}
