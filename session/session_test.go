// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wombat-foundation/wombat/natmap"
	"github.com/wombat-foundation/wombat/rendezvous"
	"github.com/wombat-foundation/wombat/wire"
)

// loopbackMapper stands in for the UPnP mapper: it hands out a loopback
// endpoint with port 0 so the host binds an ephemeral port, and records
// whether Release was called.
type loopbackMapper struct {
	establishCalls atomic.Int32
	released       atomic.Bool
}

func (m *loopbackMapper) Establish(ctx context.Context) (natmap.Mapping, error) {
	m.establishCalls.Add(1)
	return natmap.Mapping{ExternalIP: "127.0.0.1", ExternalPort: 0}, nil
}

func (m *loopbackMapper) Release(ctx context.Context) error {
	m.released.Store(true)
	return nil
}

// failingMapper fails discovery, as on a network with UPnP disabled.
type failingMapper struct{}

func (failingMapper) Establish(ctx context.Context) (natmap.Mapping, error) {
	return natmap.Mapping{}, &natmap.MappingError{
		Stage: natmap.StageDiscover,
		Err:   errors.New("no devices responded"),
	}
}

func (failingMapper) Release(ctx context.Context) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TLCombatLog-260101_211639.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing log file: %v", err)
	}
	return path
}

// startHost shares content from a temp file and arranges cleanup.
func startHost(t *testing.T, content string) (*Host, *loopbackMapper, string) {
	t.Helper()
	mapper := &loopbackMapper{}
	host := &Host{Mapper: mapper, Logger: quietLogger()}
	code, err := host.Share(context.Background(), writeLog(t, content))
	if err != nil {
		t.Fatalf("Share() error: %v", err)
	}
	t.Cleanup(host.Stop)
	return host, mapper, code
}

// stopWithin fails the test if Stop does not return within the window.
func stopWithin(t *testing.T, host *Host, window time.Duration) {
	t.Helper()
	stopped := make(chan struct{})
	go func() {
		host.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(window):
		t.Fatal("Stop() did not return")
	}
}

func TestShareAndReceive(t *testing.T) {
	content := "a,b,c\n1,2,3\n"
	_, _, code := startHost(t, content)

	got, err := Receive(context.Background(), code, 5*time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if got != content {
		t.Errorf("Receive() = %q, want %q", got, content)
	}

	// The payload is reusable: a second receiver on the same code gets
	// the same bytes.
	got, err = Receive(context.Background(), code, 5*time.Second)
	if err != nil {
		t.Fatalf("second Receive() error: %v", err)
	}
	if got != content {
		t.Errorf("second Receive() = %q, want %q", got, content)
	}
}

func TestShare_MissingFile(t *testing.T) {
	mapper := &loopbackMapper{}
	host := &Host{Mapper: mapper, Logger: quietLogger()}

	_, err := host.Share(context.Background(), filepath.Join(t.TempDir(), "no-such-log.txt"))
	if err == nil {
		t.Fatal("Share() succeeded with a missing file")
	}
	if mapper.establishCalls.Load() != 0 {
		t.Error("Share() touched the network before reading the file")
	}
}

func TestShare_MappingFailure(t *testing.T) {
	host := &Host{Mapper: failingMapper{}, Logger: quietLogger()}

	_, err := host.Share(context.Background(), writeLog(t, "x"))
	if err == nil {
		t.Fatal("Share() succeeded despite mapping failure")
	}
	var mappingErr *natmap.MappingError
	if !errors.As(err, &mappingErr) {
		t.Fatalf("Share() error type = %T, want *natmap.MappingError", err)
	}
	if mappingErr.Stage != natmap.StageDiscover {
		t.Errorf("MappingError.Stage = %v, want StageDiscover", mappingErr.Stage)
	}
}

func TestShare_Twice(t *testing.T) {
	host, _, _ := startHost(t, "x")
	if _, err := host.Share(context.Background(), writeLog(t, "y")); err == nil {
		t.Error("second Share() succeeded, want error")
	}
}

func TestStop_BeforeShare(t *testing.T) {
	mapper := &loopbackMapper{}
	host := &Host{Mapper: mapper, Logger: quietLogger()}
	host.Stop()

	if _, err := host.Share(context.Background(), writeLog(t, "x")); err == nil {
		t.Error("Share() after Stop() succeeded, want error")
	}
}

func TestStop_UnblocksAcceptAndReleasesPort(t *testing.T) {
	host, mapper, _ := startHost(t, "x")
	addr := host.Addr().String()

	stopWithin(t, host, 5*time.Second)

	if !mapper.released.Load() {
		t.Error("Stop() did not release the port mapping")
	}

	// The port must be bindable again after Stop.
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("rebinding %s after Stop(): %v", addr, err)
	}
	listener.Close()

	if status := host.Status(); status != "" {
		t.Errorf("Status() after clean stop = %q, want empty", status)
	}
}

func TestStop_Twice(t *testing.T) {
	host, _, _ := startHost(t, "x")
	stopWithin(t, host, 5*time.Second)
	stopWithin(t, host, 5*time.Second)
}

// tamperSecret rebuilds a code with the last byte of the secret flipped,
// keeping the length identical.
func tamperSecret(t *testing.T, code string) string {
	t.Helper()
	info, err := rendezvous.Decode(code)
	if err != nil {
		t.Fatalf("decoding code: %v", err)
	}
	secret := []byte(info.Secret)
	if secret[len(secret)-1] == 'A' {
		secret[len(secret)-1] = 'B'
	} else {
		secret[len(secret)-1] = 'A'
	}
	info.Secret = string(secret)
	tampered, err := rendezvous.Encode(info)
	if err != nil {
		t.Fatalf("re-encoding code: %v", err)
	}
	return tampered
}

func TestListener_SurvivesBadAuth(t *testing.T) {
	content := "a,b,c\n1,2,3\n"
	host, _, code := startHost(t, content)

	// Wrong secret: no payload, typed failure, session still alive.
	got, err := Receive(context.Background(), tamperSecret(t, code), 5*time.Second)
	if err == nil {
		t.Fatalf("Receive() with tampered secret = %q, want error", got)
	}
	var incomplete *wire.IncompleteError
	if !errors.As(err, &incomplete) {
		t.Errorf("Receive() error type = %T, want *wire.IncompleteError", err)
	}

	// The host records the rejection without ending the session.
	deadline := time.Now().Add(2 * time.Second)
	for host.Status() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if status := host.Status(); status != "authentication from remote user failed" {
		t.Errorf("Status() = %q, want auth failure recorded", status)
	}

	// Correct secret on the same listener still succeeds.
	got, err = Receive(context.Background(), code, 5*time.Second)
	if err != nil {
		t.Fatalf("Receive() after bad-auth connection: %v", err)
	}
	if got != content {
		t.Errorf("Receive() = %q, want %q", got, content)
	}
}

func TestReceive_InvalidCode(t *testing.T) {
	_, err := Receive(context.Background(), "not a session code", time.Second)
	var decodeErr *rendezvous.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Receive() error type = %T, want *rendezvous.DecodeError", err)
	}
}

func TestReceive_ConnectionRefused(t *testing.T) {
	// Grab an ephemeral port and close it again so nothing is listening.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	code, err := rendezvous.Encode(rendezvous.Info{IP: "127.0.0.1", Port: port, Secret: "abc"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	_, err = Receive(context.Background(), code, 2*time.Second)
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Receive() error type = %T, want *ConnectError", err)
	}
}

func TestReceive_SilentHost(t *testing.T) {
	// A host that accepts and never speaks: Receive must give up when
	// its budget runs out, not hang.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		// Hold the connection open without reading or writing until
		// the listener is torn down.
		buffer := make([]byte, 1)
		for {
			if _, readErr := conn.Read(buffer); readErr != nil {
				return
			}
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	code, err := rendezvous.Encode(rendezvous.Info{IP: "127.0.0.1", Port: port, Secret: "abc"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	start := time.Now()
	_, err = Receive(context.Background(), code, 500*time.Millisecond)
	if err == nil {
		t.Fatal("Receive() from a silent host succeeded")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Receive() took %v, want bounded by its timeout", elapsed)
	}
}

func TestReceive_TruncatedTransfer(t *testing.T) {
	secret := "abc"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	// A host that declares 100 bytes, delivers 40, and drops the
	// connection mid-transfer.
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		presented := make([]byte, len(secret))
		if _, readErr := io.ReadFull(conn, presented); readErr != nil {
			return
		}
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 100)
		conn.Write(header[:])
		conn.Write(make([]byte, 40))
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	code, err := rendezvous.Encode(rendezvous.Info{IP: "127.0.0.1", Port: port, Secret: secret})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	got, err := Receive(context.Background(), code, 2*time.Second)
	if err == nil {
		t.Fatalf("Receive() = %q, want error on truncated transfer", got)
	}
	var incomplete *wire.IncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("Receive() error type = %T, want *wire.IncompleteError", err)
	}
	if incomplete.Declared != 100 || incomplete.Received != 40 {
		t.Errorf("IncompleteError = {Declared: %d, Received: %d}, want {100, 40}", incomplete.Declared, incomplete.Received)
	}
}

func TestHostAddr_BeforeShare(t *testing.T) {
	host := &Host{Mapper: &loopbackMapper{}, Logger: quietLogger()}
	if addr := host.Addr(); addr != nil {
		t.Errorf("Addr() before Share = %v, want nil", addr)
	}
}
