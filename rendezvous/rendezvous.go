// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// secretSize is the number of random bytes in a generated session
// secret. The base64url form is 43 characters.
const secretSize = 32

// Info is the triple a receiver needs to reach a hosting session: the
// host's public address, the mapped TCP port, and the bearer secret
// presented during the transfer handshake. An Info is created once per
// hosting session and never mutated.
type Info struct {
	// IP is the host's externally reachable address, as reported by the
	// gateway during port mapping.
	IP string `json:"ip"`

	// Port is the externally mapped TCP port (1–65535).
	Port int `json:"port"`

	// Secret is the session bearer secret. The receiver must present
	// exactly these bytes (UTF-8) to be served the payload.
	Secret string `json:"secret"`
}

// DecodeError reports why a session code could not be decoded. Callers
// can use errors.As to distinguish a malformed code (recoverable by
// asking the user to re-enter it) from network failures:
//
//	var decodeErr *rendezvous.DecodeError
//	if errors.As(err, &decodeErr) { ... }
type DecodeError struct {
	// Reason is a short human-readable description of what was wrong
	// with the code.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid session code: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid session code: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes info into a session code: base64url over the UTF-8
// JSON form. It fails only if info is not well-formed (empty address,
// port outside 1–65535, empty secret).
func Encode(info Info) (string, error) {
	if err := validate(info); err != nil {
		return "", fmt.Errorf("encoding session code: %w", err)
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("encoding session code: %w", err)
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

// Decode parses a session code back into an [Info]. It is all-or-nothing:
// on any failure it returns a zero Info and a *DecodeError. Codes with or
// without base64 padding are accepted; unknown JSON keys are ignored.
func Decode(code string) (Info, error) {
	payload, err := base64.URLEncoding.DecodeString(code)
	if err != nil {
		// Tolerate codes that were stripped of their padding in
		// transit (chat clients love doing this).
		payload, err = base64.RawURLEncoding.DecodeString(code)
		if err != nil {
			return Info{}, &DecodeError{Reason: "not base64url", Err: err}
		}
	}

	// Decode into pointer fields so that a key that is merely absent is
	// distinguishable from a present-but-zero value.
	var raw struct {
		IP     *string `json:"ip"`
		Port   *int    `json:"port"`
		Secret *string `json:"secret"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Info{}, &DecodeError{Reason: "not a JSON session payload", Err: err}
	}
	if raw.IP == nil {
		return Info{}, &DecodeError{Reason: `missing "ip"`}
	}
	if raw.Port == nil {
		return Info{}, &DecodeError{Reason: `missing "port"`}
	}
	if raw.Secret == nil {
		return Info{}, &DecodeError{Reason: `missing "secret"`}
	}

	info := Info{IP: *raw.IP, Port: *raw.Port, Secret: *raw.Secret}
	if err := validate(info); err != nil {
		return Info{}, &DecodeError{Reason: "malformed session payload", Err: err}
	}
	return info, nil
}

// NewSecret generates a fresh session secret: 32 random bytes in
// base64url form. Panics only if the operating system's entropy source
// is broken.
func NewSecret() string {
	buf := make([]byte, secretSize)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("rendezvous: reading random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func validate(info Info) error {
	if info.IP == "" {
		return fmt.Errorf("address is empty")
	}
	if info.Port < 1 || info.Port > 65535 {
		return fmt.Errorf("port %d outside 1-65535", info.Port)
	}
	if info.Secret == "" {
		return fmt.Errorf("secret is empty")
	}
	return nil
}
