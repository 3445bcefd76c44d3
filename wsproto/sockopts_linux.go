//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsproto

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// tuneSocket disables Nagle's algorithm and enables TCP keepalive on
// the raw socket underlying conn, adapted from the teacher's
// internal/transport/transport_linux.go (unix.SetsockoptInt with
// TCP_NODELAY on a freshly created socket); here it is applied to a
// socket net.Dial/Accept already produced, reached via SyscallConn.
func tuneSocket(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if sockErr == nil {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
