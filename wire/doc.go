// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the framing of a log transfer: a bearer-secret
// handshake followed by a single length-prefixed payload.
//
// The exchange on an accepted connection is fixed:
//
//	receiver -> host:  secret bytes (exactly len(secret), byte-for-byte match)
//	host -> receiver:  4-byte big-endian payload length
//	host -> receiver:  exactly that many payload bytes
//
// [Serve] runs the host half, [Receive] the receiver half. Both operate
// on a plain io.ReadWriter so they can be exercised on net.Pipe in tests
// and reused unchanged on any stream transport. Deadlines and timeouts
// are the caller's responsibility; the session package sets them on the
// underlying net.Conn.
//
// The protocol carries no encryption and no integrity check beyond exact
// length: the secret authenticates the receiver, nothing more.
package wire
