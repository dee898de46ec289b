package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// Dial connects to addr over TCP, applying opts to the underlying socket
// before the connection completes.
func Dial(ctx context.Context, addr string, opts ...Option) (net.Conn, error) {
	o := buildOptions(opts)
	d := net.Dialer{Control: controlFunc(o)}
	return d.DialContext(ctx, "tcp", addr)
}

// DialTLS connects to addr over TCP and then performs a TLS handshake using
// cfg, applying opts to the underlying socket before either completes.
func DialTLS(ctx context.Context, addr string, cfg *tls.Config, opts ...Option) (net.Conn, error) {
	o := buildOptions(opts)
	d := tls.Dialer{
		NetDialer: &net.Dialer{Control: controlFunc(o)},
		Config:    cfg,
	}
	return d.DialContext(ctx, "tcp", addr)
}
