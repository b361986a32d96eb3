// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/remoto/internal/stream"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := DefaultPath(filepath.Join(t.TempDir(), "nested"))
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := stream.Snapshot{
		SessionID:    "abc",
		Generation:   3,
		Active:       true,
		URL:          "http://host:8888/screen/index.m3u8",
		Status:       stream.StatusBuffering,
		ErrorMessage: "Connection lost. Retrying in 4s...",
		LastDataAt:   at.Add(-time.Second),
		RetryCount:   2,
		Visible:      true,
		RetryPending: true,
		RetryDelay:   4 * time.Second,
		UpdatedAt:    at,
	}

	require.NoError(t, Write(path, want))
	got, err := Read(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// Overwrite leaves no temp files behind.
	want.Status = stream.StatusLive
	require.NoError(t, Write(path, want))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	got, err = Read(path)
	require.NoError(t, err)
	assert.Equal(t, stream.StatusLive, got.Status)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), FileName))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Read(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
