//go:build !linux && !windows
// +build !linux,!windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsproto

import "net"

// tuneSocket is a no-op fallback for platforms without a
// golang.org/x/sys binding wired in here, mirroring the teacher's
// internal/concurrency/affinity_other.go fallback.
func tuneSocket(conn net.Conn) error {
	return nil
}
