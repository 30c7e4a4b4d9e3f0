// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements both ends of a combat-log sharing session.
//
// [Host] exposes a local log file to remote receivers: Share reads the
// file into memory, establishes the gateway port mapping, binds the
// listener, and returns a session code while an accept loop keeps
// serving in the background. Connections are handled strictly one at a
// time: a session has one intended recipient, and a second connection
// simply waits behind the first. A connection that fails authentication
// is dropped without ending the session; the listener keeps accepting so
// the receiver can retry with a corrected code.
//
// Stop is the only cancellation path: it closes the listener, which
// unblocks the accept loop, and releases the port mapping. There is no
// separate cancellation token; the loop distinguishes an intentional
// stop from a real listener fault by a flag the stopper sets immediately
// before closing.
//
// [Receive] is the receiving end: decode a session code, connect within
// a single timeout budget covering the whole exchange, authenticate,
// and return the payload text. It either returns the complete payload
// or a typed error, never a silently truncated transfer. Retries are
// the caller's business; the hosting side tolerates repeat connections.
package session
