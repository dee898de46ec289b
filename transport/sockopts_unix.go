//go:build unix

package transport

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlFunc builds the net.Dialer/net.ListenConfig Control callback that
// applies o to a raw socket before it connects or binds, the same switch the
// reference implementation's ApplyOpts used on hand-created fds — except
// here the fd comes from Go's net package via syscall.RawConn.Control,
// rather than from a syscall.Socket call this module makes itself.
func controlFunc(o Options) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var applyErr error
		err := c.Control(func(fd uintptr) {
			applyErr = applyOpts(int(fd), o)
		})
		if err != nil {
			return err
		}
		return applyErr
	}
}

func applyOpts(fd int, o Options) error {
	if o.NoDelay {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
			return os.NewSyscallError("setsockopt(TCP_NODELAY)", err)
		}
	}
	if o.ReuseAddr {
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
			return os.NewSyscallError("setsockopt(SO_REUSEADDR)", err)
		}
	}
	if o.ReusePort {
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return os.NewSyscallError("setsockopt(SO_REUSEPORT)", err)
		}
	}
	return nil
}
