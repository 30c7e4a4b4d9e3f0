// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package rendezvous mints and parses the session codes that hosts hand
// to receivers out-of-band (chat, e-mail, clipboard).
//
// A code is the base64url encoding of a UTF-8 JSON object with three
// keys: "ip", "port", and "secret". [Encode] produces a single printable
// string safe for plain-text transmission. [Decode] is all-or-nothing:
// it either reproduces the exact [Info] that was encoded or fails with a
// [DecodeError]; it never returns a partially populated Info. Unknown
// JSON keys are ignored for forward compatibility.
//
// [NewSecret] generates the per-session bearer secret carried inside the
// code. The secret authenticates the receiver to the host; it is not an
// encryption key, and the transfer itself is plaintext.
package rendezvous
