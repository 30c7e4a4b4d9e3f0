// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wombat-foundation/wombat/rendezvous"
	"github.com/wombat-foundation/wombat/wire"
)

// DefaultReceiveTimeout is the whole-exchange budget for [Receive] when
// the caller passes zero: connect, authenticate, and read the payload.
const DefaultReceiveTimeout = 10 * time.Second

// ConnectError reports a failure to reach or talk to the hosting peer:
// refused connection, unreachable address, or the timeout budget
// running out. Retrying with the same code is safe: the host keeps
// accepting until it stops sharing.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to host %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Receive consumes a session code: decode it, connect to the host,
// authenticate with the embedded secret, and return the payload text.
//
// One timeout budget covers the entire exchange; zero means
// DefaultReceiveTimeout. Failures are typed: a malformed code is a
// *[rendezvous.DecodeError], connection and timeout failures are a
// *[ConnectError], and a connection that closed before the declared
// payload length arrived is a *[wire.IncompleteError]. Partial data is
// never returned as success. Receive does not retry; callers that want
// retries invoke it again with the same code.
func Receive(ctx context.Context, code string, timeout time.Duration) (string, error) {
	info, err := rendezvous.Decode(code)
	if err != nil {
		return "", err
	}

	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	deadline := time.Now().Add(timeout)
	addr := net.JoinHostPort(info.IP, strconv.Itoa(info.Port))

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", &ConnectError{Addr: addr, Err: err}
	}
	defer conn.Close()
	conn.SetDeadline(deadline)

	payload, err := wire.Receive(conn, []byte(info.Secret))
	if err != nil {
		var incomplete *wire.IncompleteError
		if errors.As(err, &incomplete) {
			return "", err
		}
		return "", &ConnectError{Addr: addr, Err: err}
	}
	return string(payload), nil
}
