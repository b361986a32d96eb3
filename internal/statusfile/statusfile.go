// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package statusfile persists the latest session snapshot as JSON so the CLI
// and external tools can read it without talking to the daemon.
package statusfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ManuGH/remoto/internal/metrics"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/google/renameio/v2"
)

// FileName is the default name inside the data directory.
const FileName = "status.json"

// ErrNotFound is returned by Read when no status file exists.
var ErrNotFound = errors.New("statusfile: not found")

// DefaultPath returns the status file location inside dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Write atomically replaces the file at path with snap.
// Readers never observe a partially written file.
func Write(path string, snap stream.Snapshot) (err error) {
	defer func() { metrics.IncStatusFileWrite(err == nil) }()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// Read loads the snapshot stored at path.
func Read(path string) (stream.Snapshot, error) {
	var snap stream.Snapshot
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snap, ErrNotFound
		}
		return snap, fmt.Errorf("read status file: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode status file %s: %w", path, err)
	}
	return snap, nil
}
