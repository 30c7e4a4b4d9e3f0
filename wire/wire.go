// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// lengthHeaderSize is the size of the payload length prefix in bytes.
const lengthHeaderSize = 4

// ErrAuthMismatch is returned by [Serve] when the receiver's secret does
// not match. The host closes the offending connection and keeps
// listening; nothing is written to the receiver.
var ErrAuthMismatch = errors.New("wire: authentication mismatch")

// IncompleteError is returned by [Receive] when the connection closes
// before the declared payload length has arrived. The partial bytes are
// discarded; a short transfer is never surfaced as success.
type IncompleteError struct {
	// Declared is the payload length announced in the header, or 0 if
	// the connection closed before a complete header arrived.
	Declared int

	// Received is the number of payload bytes that did arrive.
	Received int

	// Err is the read error that ended the transfer.
	Err error
}

func (e *IncompleteError) Error() string {
	if e.Declared == 0 {
		return fmt.Sprintf("wire: connection closed before length header: %v", e.Err)
	}
	return fmt.Sprintf("wire: transfer incomplete: got %d of %d bytes: %v", e.Received, e.Declared, e.Err)
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}

// Serve runs the host half of the transfer on rw: read the receiver's
// secret, compare, and on a match write the length-prefixed payload.
//
// The secret read uses io.ReadFull, so a receiver that closes early or
// sends fewer bytes than the secret length fails authentication rather
// than being compared against a short buffer. The comparison is
// constant-time; the secret is a bearer credential and the mismatch path
// should not leak how many leading bytes matched.
//
// On mismatch Serve returns [ErrAuthMismatch] having written nothing.
func Serve(rw io.ReadWriter, secret, payload []byte) error {
	if len(payload) > math.MaxUint32 {
		return fmt.Errorf("wire: payload of %d bytes exceeds the 4-byte length header", len(payload))
	}

	presented := make([]byte, len(secret))
	if _, err := io.ReadFull(rw, presented); err != nil {
		return fmt.Errorf("%w: reading secret: %v", ErrAuthMismatch, err)
	}
	if subtle.ConstantTimeCompare(presented, secret) != 1 {
		return ErrAuthMismatch
	}

	var header [lengthHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := rw.Write(header[:]); err != nil {
		return fmt.Errorf("wire: writing length header: %w", err)
	}
	if _, err := rw.Write(payload); err != nil {
		return fmt.Errorf("wire: writing payload: %w", err)
	}
	return nil
}

// Receive runs the receiver half of the transfer on rw: present the
// secret, read the length header, then accumulate exactly the declared
// number of payload bytes.
//
// If the host closes before a full header arrives (the mismatch case, or
// a dead host), or before the declared length is reached, Receive
// returns an *[IncompleteError] and no data.
func Receive(rw io.ReadWriter, secret []byte) ([]byte, error) {
	if _, err := rw.Write(secret); err != nil {
		return nil, fmt.Errorf("wire: sending secret: %w", err)
	}

	var header [lengthHeaderSize]byte
	if _, err := io.ReadFull(rw, header[:]); err != nil {
		return nil, &IncompleteError{Err: err}
	}
	declared := binary.BigEndian.Uint32(header[:])

	payload := make([]byte, declared)
	received, err := io.ReadFull(rw, payload)
	if err != nil {
		return nil, &IncompleteError{Declared: int(declared), Received: received, Err: err}
	}
	return payload, nil
}
