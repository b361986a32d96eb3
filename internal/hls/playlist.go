// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotM3U8 is returned for a body that does not start with #EXTM3U.
	ErrNotM3U8 = errors.New("not an m3u8 playlist")
	// ErrUnsupportedEncryption is returned for any EXT-X-KEY method other than NONE.
	ErrUnsupportedEncryption = errors.New("unsupported segment encryption")
)

// Variant is one EXT-X-STREAM-INF entry of a master playlist.
type Variant struct {
	URI        string
	Bandwidth  int64
	Resolution string
	Codecs     string
}

// Segment is one media segment of a media playlist.
type Segment struct {
	Sequence uint64
	URI      string
	Duration time.Duration
	PDT      time.Time
}

// Playlist is either a master playlist (Variants set) or a media playlist.
type Playlist struct {
	Master   bool
	Variants []Variant

	TargetDuration time.Duration
	MediaSequence  uint64
	Segments       []Segment
	Ended          bool
	TypeVOD        bool
	KeyMethod      string
}

// Parse reads a master or media playlist.
func Parse(data []byte) (*Playlist, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawHeader := false
	pl := &Playlist{}

	var (
		pendingVariant *Variant
		nextDuration   time.Duration
		nextPDT        time.Time
		lastPDT        time.Time
		seq            uint64
		seqSet         bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawHeader {
			if !strings.HasPrefix(strings.TrimPrefix(line, "\ufeff"), "#EXTM3U") {
				return nil, ErrNotM3U8
			}
			sawHeader = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			bw, _ := strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)
			pendingVariant = &Variant{Bandwidth: bw, Resolution: attrs["RESOLUTION"], Codecs: attrs["CODECS"]}
			pl.Master = true

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v := strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid target duration: %s", v)
			}
			pl.TargetDuration = time.Duration(secs * float64(time.Second))

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			v := strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid media sequence: %s", v)
			}
			pl.MediaSequence = n
			if !seqSet {
				seq = n
			}

		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			pl.TypeVOD = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:") == "VOD"

		case line == "#EXT-X-ENDLIST":
			pl.Ended = true

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			method := strings.ToUpper(parseAttributes(strings.TrimPrefix(line, "#EXT-X-KEY:"))["METHOD"])
			if method != "" && method != "NONE" {
				pl.KeyMethod = method
				return pl, fmt.Errorf("%w: %s", ErrUnsupportedEncryption, method)
			}

		case strings.HasPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"):
			v := strings.TrimPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:")
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("invalid PDT format: %s", v)
			}
			if !lastPDT.IsZero() && t.Before(lastPDT) {
				return nil, fmt.Errorf("PDT non-monotonic: %v < %v", t, lastPDT)
			}
			nextPDT, lastPDT = t, t

		case strings.HasPrefix(line, "#EXTINF:"):
			v := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(v, ","); idx != -1 {
				v = v[:idx]
			}
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("invalid EXTINF duration: %s", v)
			}
			nextDuration = time.Duration(secs * float64(time.Second))

		case strings.HasPrefix(line, "#"):
			// unknown tag or comment

		default:
			if pendingVariant != nil {
				pendingVariant.URI = line
				pl.Variants = append(pl.Variants, *pendingVariant)
				pendingVariant = nil
				continue
			}
			seqSet = true
			pl.Segments = append(pl.Segments, Segment{
				Sequence: seq,
				URI:      line,
				Duration: nextDuration,
				PDT:      nextPDT,
			})
			seq++
			nextDuration = 0
			nextPDT = time.Time{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, ErrNotM3U8
	}
	if pl.Master && len(pl.Variants) == 0 {
		return nil, errors.New("master playlist without variants")
	}
	return pl, nil
}

// BestVariant returns the highest-bandwidth variant; ties keep the first listed.
func (p *Playlist) BestVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	best := p.Variants[0]
	for _, v := range p.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

// IsVOD reports whether the playlist will not grow any further.
func (p *Playlist) IsVOD() bool {
	return p.TypeVOD || p.Ended
}

// parseAttributes splits an HLS attribute list (KEY=VALUE,KEY="a,b").
func parseAttributes(s string) map[string]string {
	out := make(map[string]string)
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				val, s = s[1:], ""
			} else {
				val, s = s[1:end+1], s[end+2:]
			}
			s = strings.TrimPrefix(s, ",")
		} else if comma := strings.IndexByte(s, ','); comma >= 0 {
			val, s = s[:comma], s[comma+1:]
		} else {
			val, s = s, ""
		}
		out[strings.ToUpper(key)] = val
	}
	return out
}

// ResolveURI resolves ref against the playlist URL it was found in.
func ResolveURI(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
