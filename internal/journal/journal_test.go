// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/remoto/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func transition(from, to stream.Status, reason string, at time.Time, retries int) stream.Transition {
	return stream.Transition{
		From:   from,
		To:     to,
		Reason: reason,
		At:     at,
		Snapshot: stream.Snapshot{
			SessionID:    "sess-1",
			URL:          "http://cam/screen/index.m3u8",
			Status:       to,
			ErrorMessage: "Connection lost, retrying in 1s...",
			RetryCount:   retries,
		},
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, transition(stream.StatusConnecting, stream.StatusLive, stream.ReasonProgress, base, 0)))
	require.NoError(t, s.Record(ctx, transition(stream.StatusLive, stream.StatusBuffering, stream.ReasonNetworkError, base.Add(time.Second), 1)))
	require.NoError(t, s.Record(ctx, transition(stream.StatusBuffering, stream.StatusLive, stream.ReasonProgress, base.Add(2*time.Second), 0)))

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "live", entries[0].To)
	assert.Equal(t, "buffering", entries[1].To)
	assert.Equal(t, stream.ReasonNetworkError, entries[1].Reason)
	assert.Equal(t, 1, entries[1].RetryCount)
	assert.Equal(t, "sess-1", entries[1].SessionID)
	assert.True(t, entries[1].At.Equal(base.Add(time.Second)))

	_, err = s.Recent(ctx, 0)
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, transition(stream.StatusLive, stream.StatusBuffering, stream.ReasonStale, now.Add(-10*24*time.Hour), 0)))
	require.NoError(t, s.Record(ctx, transition(stream.StatusLive, stream.StatusBuffering, stream.ReasonStale, now.Add(-8*24*time.Hour), 0)))
	require.NoError(t, s.Record(ctx, transition(stream.StatusBuffering, stream.StatusLive, stream.ReasonProgress, now, 0)))

	n, err := s.Prune(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, transition(stream.StatusConnecting, stream.StatusLive, stream.ReasonProgress, time.Now(), 0)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NoError(t, s.Check(ctx))
}
