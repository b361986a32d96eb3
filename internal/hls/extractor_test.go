// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSegmentTruth(t *testing.T) {
	tests := []struct {
		name          string
		playlist      string
		errorContains string
		check         func(t *testing.T, truth *SegmentTruth)
	}{
		{
			name: "vod without pdt",
			playlist: `#EXTM3U
#EXT-X-PLAYLIST-TYPE:VOD
#EXT-X-TARGETDURATION:10
#EXTINF:10.0,
segment1.ts
#EXTINF:10.0,
segment2.ts
#EXT-X-ENDLIST`,
			check: func(t *testing.T, truth *SegmentTruth) {
				assert.True(t, truth.IsVOD)
				assert.False(t, truth.HasPDT)
				assert.Equal(t, 20*time.Second, truth.TotalDuration)
			},
		},
		{
			name: "live with full pdt",
			playlist: `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T12:00:00Z
#EXTINF:10.0,
segment1.ts
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T12:00:10Z
#EXTINF:10.0,
segment2.ts`,
			check: func(t *testing.T, truth *SegmentTruth) {
				assert.False(t, truth.IsVOD)
				assert.True(t, truth.HasPDT)
				assert.True(t, truth.FirstPDT.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
				assert.True(t, truth.LastPDT.Equal(time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)))
				assert.Equal(t, 10*time.Second, truth.LastDuration)
			},
		},
		{
			name: "endlist implies vod",
			playlist: `#EXTM3U
#EXTINF:10.0,
segment1.ts
#EXT-X-ENDLIST`,
			check: func(t *testing.T, truth *SegmentTruth) {
				assert.True(t, truth.IsVOD)
			},
		},
		{
			name: "live partial pdt fails closed",
			playlist: `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T12:00:00Z
#EXTINF:10.0,
segment1.ts
#EXTINF:10.0,
segment2.ts`,
			errorContains: "partial PDT coverage",
		},
		{
			name: "non-monotonic pdt",
			playlist: `#EXTM3U
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T12:00:10Z
#EXTINF:10.0,
segment1.ts
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T12:00:00Z
#EXTINF:10.0,
segment2.ts`,
			errorContains: "non-monotonic",
		},
		{
			name: "corrupt extinf",
			playlist: `#EXTM3U
#EXTINF:ten,
segment1.ts`,
			errorContains: "invalid EXTINF",
		},
		{
			name:          "master playlist",
			playlist:      "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nlow.m3u8\n",
			errorContains: "media playlist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			truth, err := ExtractSegmentTruth(tt.playlist)
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			tt.check(t, truth)
		})
	}
}

type truthGolden struct {
	IsVOD         bool   `json:"isVOD"`
	HasPDT        bool   `json:"hasPDT"`
	TotalDuration string `json:"totalDuration"`
}

func TestExtractSegmentTruth_Goldens(t *testing.T) {
	fixtureDir := filepath.Join("testdata", "fixtures")
	goldenDir := filepath.Join("testdata", "golden")
	updateGoldens := os.Getenv("UPDATE_GOLDEN") == "1"

	tests := []struct {
		fixture   string
		wantError error
	}{
		{fixture: "vod_with_pdt.m3u8"},
		{fixture: "live_with_pdt.m3u8"},
		{fixture: "live_no_pdt.m3u8"},
		{fixture: "invalid_missing_extm3u.m3u8", wantError: ErrNotM3U8},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			content, err := os.ReadFile(filepath.Join(fixtureDir, tt.fixture))
			require.NoError(t, err)

			truth, err := ExtractSegmentTruth(string(content))
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			actual := truthGolden{
				IsVOD:         truth.IsVOD,
				HasPDT:        truth.HasPDT,
				TotalDuration: truth.TotalDuration.String(),
			}

			base := strings.TrimSuffix(tt.fixture, filepath.Ext(tt.fixture))
			goldenPath := filepath.Join(goldenDir, base+".truth.json")

			if updateGoldens {
				blob, err := json.MarshalIndent(actual, "", "  ")
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(goldenPath, append(blob, '\n'), 0o644))
				return
			}

			expectedBytes, err := os.ReadFile(goldenPath)
			require.NoError(t, err, "missing golden file; set UPDATE_GOLDEN=1 to generate")

			var expected truthGolden
			require.NoError(t, json.Unmarshal(expectedBytes, &expected))

			if diff := cmp.Diff(expected, actual); diff != "" {
				t.Fatalf("golden mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
