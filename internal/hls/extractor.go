// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"errors"
	"fmt"
	"time"
)

// SegmentTruth is the timeline summary of a media playlist.
type SegmentTruth struct {
	HasPDT        bool
	FirstPDT      time.Time
	LastPDT       time.Time
	LastDuration  time.Duration
	TotalDuration time.Duration
	IsVOD         bool // #EXT-X-PLAYLIST-TYPE:VOD or #EXT-X-ENDLIST
}

// ExtractSegmentTruth parses a media playlist and summarizes its timeline.
// Corrupt or backwards PDTs fail, and so does a live playlist where only some
// segments carry a PDT.
func ExtractSegmentTruth(playlist string) (*SegmentTruth, error) {
	pl, err := Parse([]byte(playlist))
	if err != nil {
		return nil, err
	}
	return Truth(pl)
}

// Truth summarizes an already parsed media playlist.
func Truth(pl *Playlist) (*SegmentTruth, error) {
	if pl.Master {
		return nil, errors.New("segment truth requires a media playlist")
	}

	truth := &SegmentTruth{IsVOD: pl.IsVOD()}
	withPDT := 0
	for _, seg := range pl.Segments {
		truth.TotalDuration += seg.Duration
		truth.LastDuration = seg.Duration
		if seg.PDT.IsZero() {
			continue
		}
		withPDT++
		if truth.FirstPDT.IsZero() {
			truth.FirstPDT = seg.PDT
		}
		truth.LastPDT = seg.PDT
	}
	truth.HasPDT = withPDT > 0

	if !truth.IsVOD && truth.HasPDT && withPDT != len(pl.Segments) {
		return nil, fmt.Errorf("partial PDT coverage in live playlist (found %d/%d)", withPDT, len(pl.Segments))
	}
	return truth, nil
}
