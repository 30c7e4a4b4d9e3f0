// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies the network errors the session host cares
// about: normal connection teardown versus real faults, and the
// privileged-port bind refusal that end users can actually act on.
package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection reset.
// A receiver that got its payload and hung up produces one of these on
// the host's side of the connection; none of them should be logged as
// errors or recorded as session status.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// IsPermissionDenied reports whether err is the OS refusing an operation
// for lack of privilege, as when binding a restricted port. The host
// surfaces this case distinctly from generic bind failures; it is the
// one failure the user can fix by picking a different port.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EACCES || errno == syscall.EPERM
	}
	return false
}
