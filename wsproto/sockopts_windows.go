//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsproto

import (
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// tuneSocket is the Windows counterpart of sockopts_linux.go's
// tuneSocket, using golang.org/x/sys/windows. It sets only
// TCP_NODELAY; unlike the Linux version it does not enable
// SO_KEEPALIVE. Adapted from the teacher's internal/transport/transport_windows.go
// (windows.SetsockoptInt with TCP_NODELAY on socket creation).
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
		handle := windows.Handle(fd)
		sockErr = windows.SetsockoptInt(handle, windows.IPPROTO_TCP, windows.TCP_NODELAY, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
