// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package combatlog locates combat log files on the hosting machine.
//
// The game writes logs under the per-user local data directory
// (%LocalAppData%\TL\Saved\CombatLogs on Windows); [Dir] resolves the
// equivalent path on whatever OS we are running on, and [Latest] picks
// the newest log in a directory so "share my current log" needs no file
// picker. What the logs contain is none of this package's business;
// parsing lives with the ingestion side.
package combatlog

import (
	"fmt"
	"os"
	"path/filepath"
)

// filePattern matches the game's log file naming scheme, e.g.
// TLCombatLog-260101_211639.txt.
const filePattern = "TLCombatLog-*.txt"

// Dir returns the default combat log directory for the current user:
// the OS per-user local-data path plus the game's fixed subdirectory.
func Dir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving local data directory: %w", err)
	}
	return filepath.Join(base, "TL", "Saved", "CombatLogs"), nil
}

// Latest returns the most recently modified combat log in dir. Returns
// an error if the directory is unreadable or holds no logs.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no combat logs in %s", dir)
	}

	var newest string
	var newestMod int64
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = path
			newestMod = mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no readable combat logs in %s", dir)
	}
	return newest, nil
}
