package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// Listen opens a TCP listener on addr, applying opts to the underlying
// socket before it binds.
func Listen(ctx context.Context, addr string, opts ...Option) (net.Listener, error) {
	o := buildOptions(opts)
	lc := net.ListenConfig{Control: controlFunc(o)}
	return lc.Listen(ctx, "tcp", addr)
}

// ListenTLS opens a TCP listener on addr wrapped in a TLS listener using
// cfg, applying opts to the underlying socket before it binds.
func ListenTLS(ctx context.Context, addr string, cfg *tls.Config, opts ...Option) (net.Listener, error) {
	ln, err := Listen(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(ln, cfg), nil
}
