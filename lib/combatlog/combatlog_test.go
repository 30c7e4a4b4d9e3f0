// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package combatlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLatest(t *testing.T) {
	dir := t.TempDir()

	older := filepath.Join(dir, "TLCombatLog-260101_211639.txt")
	newer := filepath.Join(dir, "TLCombatLog-260102_090000.txt")
	ignored := filepath.Join(dir, "notes.txt")

	for _, path := range []string{older, newer, ignored} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}

	// Glob order is lexical, so force the modification times apart
	// explicitly rather than relying on write order.
	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, base, base); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	got, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if got != newer {
		t.Errorf("Latest() = %q, want %q", got, newer)
	}
}

func TestLatest_Empty(t *testing.T) {
	if _, err := Latest(t.TempDir()); err == nil {
		t.Error("Latest() on an empty directory succeeded, want error")
	}
}

func TestDir(t *testing.T) {
	dir, err := Dir()
	if err != nil {
		t.Skipf("no user cache dir in this environment: %v", err)
	}
	if filepath.Base(dir) != "CombatLogs" {
		t.Errorf("Dir() = %q, want a CombatLogs path", dir)
	}
}
