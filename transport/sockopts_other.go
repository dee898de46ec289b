//go:build !unix

package transport

import "syscall"

// controlFunc is a no-op on non-Unix platforms: TCP_NODELAY/SO_REUSEADDR/
// SO_REUSEPORT tuning via syscall.RawConn.Control is Unix-specific, and
// net.Dial's own defaults are good enough where it is unavailable.
func controlFunc(o Options) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error { return nil }
}
