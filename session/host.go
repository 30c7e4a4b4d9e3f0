// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wombat-foundation/wombat/lib/netutil"
	"github.com/wombat-foundation/wombat/natmap"
	"github.com/wombat-foundation/wombat/rendezvous"
	"github.com/wombat-foundation/wombat/wire"
)

// DefaultConnTimeout bounds a single accepted connection's handshake and
// transfer. Without it, an unauthenticated peer that connects and goes
// silent would wedge the sequential accept loop forever.
const DefaultConnTimeout = 10 * time.Second

// releaseTimeout bounds the port mapping teardown during Stop.
const releaseTimeout = 5 * time.Second

// PortMapper is the slice of the NAT layer the host needs. The
// production implementation is [natmap.Mapper]; tests substitute a
// loopback stub.
type PortMapper interface {
	// Establish acquires an externally reachable endpoint for the
	// session. An ExternalPort of 0 lets the host pick an ephemeral
	// listening port.
	Establish(ctx context.Context) (natmap.Mapping, error)

	// Release tears the endpoint down once the session ends.
	Release(ctx context.Context) error
}

// PortPermissionError reports that the OS refused to bind the hosting
// port for lack of privilege. Surfaced distinctly from other bind
// failures because it is the one the user can act on: pick a port above
// 1024 or run with elevated rights.
type PortPermissionError struct {
	Port int
	Err  error
}

func (e *PortPermissionError) Error() string {
	return fmt.Sprintf("port %d is restricted: %v", e.Port, e.Err)
}

func (e *PortPermissionError) Unwrap() error {
	return e.Err
}

// Host shares one local file with remote receivers for the lifetime of
// a session. Configure the exported fields, call [Host.Share] once, and
// [Host.Stop] when done. The zero value needs at least Mapper set.
type Host struct {
	// Mapper acquires and releases the externally reachable endpoint.
	// Required.
	Mapper PortMapper

	// ConnTimeout bounds each accepted connection's authentication and
	// transfer. Zero means DefaultConnTimeout.
	ConnTimeout time.Duration

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-connection events are logged at Debug/Info, faults at
	// Warn/Error.
	Logger *slog.Logger

	mu            sync.Mutex
	shared        bool
	stopRequested bool
	listener      net.Listener
	done          chan struct{}
	lastStatus    string

	payload []byte
	secret  []byte

	// stoppedByUser is set immediately before Stop closes the
	// listener. It is the only way the accept loop can tell an
	// intentional shutdown from a listener fault.
	stoppedByUser atomic.Bool
}

func (h *Host) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Host) connTimeout() time.Duration {
	if h.ConnTimeout > 0 {
		return h.ConnTimeout
	}
	return DefaultConnTimeout
}

// Share reads the file at filePath fully into memory, establishes the
// port mapping, binds the listener, and returns the session code for
// receivers. The accept loop keeps running in the background until
// [Host.Stop]. Share can be called once per Host.
//
// The file is read before any network action, so a bad path fails fast
// with a plain file error rather than after a round of UPnP traffic.
func (h *Host) Share(ctx context.Context, filePath string) (string, error) {
	h.mu.Lock()
	if h.shared {
		h.mu.Unlock()
		return "", fmt.Errorf("session already shared")
	}
	if h.stopRequested {
		h.mu.Unlock()
		return "", fmt.Errorf("session already stopped")
	}
	if h.Mapper == nil {
		h.mu.Unlock()
		return "", fmt.Errorf("session: Mapper is required")
	}
	h.shared = true
	h.mu.Unlock()

	payload, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	mapping, err := h.Mapper.Establish(ctx)
	if err != nil {
		return "", err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", mapping.ExternalPort))
	if err != nil {
		h.releaseMapping()
		if netutil.IsPermissionDenied(err) {
			return "", &PortPermissionError{Port: int(mapping.ExternalPort), Err: err}
		}
		return "", fmt.Errorf("binding port %d: %w", mapping.ExternalPort, err)
	}

	// The mapping may have requested port 0 (loopback mappers in
	// tests); the code always carries the port actually bound.
	boundPort := listener.Addr().(*net.TCPAddr).Port

	secret := rendezvous.NewSecret()
	code, err := rendezvous.Encode(rendezvous.Info{
		IP:     mapping.ExternalIP,
		Port:   boundPort,
		Secret: secret,
	})
	if err != nil {
		listener.Close()
		h.releaseMapping()
		return "", err
	}

	h.mu.Lock()
	if h.stopRequested {
		// Stop won the race while we were setting up: undo and report.
		h.mu.Unlock()
		listener.Close()
		h.releaseMapping()
		return "", fmt.Errorf("session already stopped")
	}
	h.listener = listener
	h.payload = payload
	h.secret = []byte(secret)
	h.done = make(chan struct{})
	h.mu.Unlock()

	go func() {
		defer close(h.done)
		h.acceptLoop()
	}()

	h.logger().Info("session ready",
		"external_ip", mapping.ExternalIP,
		"port", boundPort,
		"payload_bytes", len(payload),
	)
	return code, nil
}

// Stop ends the session: it closes the listener (unblocking the accept
// loop), waits for the loop to exit, and releases the port mapping so
// the same external port can be mapped again by a future session. Safe
// to call at any time, including before Share and more than once.
func (h *Host) Stop() {
	h.mu.Lock()
	h.stopRequested = true
	listener := h.listener
	done := h.done
	h.mu.Unlock()

	// Flag first, then close: the accept loop treats a listener error
	// as clean shutdown only when the flag is already set.
	h.stoppedByUser.Store(true)
	if listener != nil {
		listener.Close()
	}
	if done != nil {
		<-done
	}
	h.releaseMapping()
}

// Wait blocks until the accept loop has exited. Returns immediately if
// Share was never called.
func (h *Host) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Addr returns the bound listener address, or nil before Share.
func (h *Host) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Status returns the last recorded per-connection failure, or "" if
// every connection so far completed cleanly. A failed connection does
// not end the session, so this is how the hosting UI learns that, say,
// a receiver presented a wrong secret.
func (h *Host) Status() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastStatus
}

func (h *Host) setStatus(status string) {
	h.mu.Lock()
	h.lastStatus = status
	h.mu.Unlock()
}

func (h *Host) releaseMapping() {
	if h.Mapper == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := h.Mapper.Release(ctx); err != nil {
		h.logger().Warn("releasing port mapping", "error", err)
	}
}

// acceptLoop serves receivers strictly one at a time until the listener
// closes. A faulty connection is logged and recorded, never fatal; only
// a listener-level error ends the loop.
func (h *Host) acceptLoop() {
	for {
		if h.stoppedByUser.Load() {
			return
		}
		conn, err := h.listener.Accept()
		if err != nil {
			if h.stoppedByUser.Load() {
				h.logger().Debug("listener closed by stop")
				return
			}
			// The listener died underneath us; without it there is
			// nothing left to serve.
			h.setStatus(fmt.Sprintf("accept failed: %v", err))
			h.logger().Error("accept failed", "error", err)
			return
		}
		h.serveConn(conn)
	}
}

// serveConn runs one authenticate-then-transfer cycle. Every outcome
// closes the connection; none of them ends the session.
func (h *Host) serveConn(conn net.Conn) {
	defer conn.Close()

	logger := h.logger().With("remote_addr", conn.RemoteAddr())
	logger.Debug("connection accepted")

	// One deadline for the whole cycle. A peer that connects and goes
	// silent must not block the loop past this.
	conn.SetDeadline(time.Now().Add(h.connTimeout()))

	err := wire.Serve(conn, h.secret, h.payload)
	switch {
	case err == nil:
		logger.Info("payload served", "bytes", len(h.payload))
	case errors.Is(err, wire.ErrAuthMismatch):
		// Reject this connection and nothing else; the receiver may
		// retry with the correct code.
		h.setStatus("authentication from remote user failed")
		logger.Warn("authentication failed")
	case netutil.IsExpectedCloseError(err):
		logger.Debug("connection closed early", "error", err)
	default:
		h.setStatus(fmt.Sprintf("error during transfer: %v", err))
		logger.Error("transfer failed", "error", err)
	}
}
