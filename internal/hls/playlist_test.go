// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Master(t *testing.T) {
	pl, err := Parse([]byte(`#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,CODECS="avc1.42e00a,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1920x1080,CODECS="avc1.640028"
high/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1200000
mid/index.m3u8
`))
	require.NoError(t, err)
	require.True(t, pl.Master)

	want := []Variant{
		{URI: "low/index.m3u8", Bandwidth: 800000, Resolution: "640x360", Codecs: "avc1.42e00a,mp4a.40.2"},
		{URI: "high/index.m3u8", Bandwidth: 2500000, Resolution: "1920x1080", Codecs: "avc1.640028"},
		{URI: "mid/index.m3u8", Bandwidth: 1200000},
	}
	if diff := cmp.Diff(want, pl.Variants); diff != "" {
		t.Fatalf("variants mismatch (-want +got):\n%s", diff)
	}

	best, ok := pl.BestVariant()
	require.True(t, ok)
	assert.Equal(t, "high/index.m3u8", best.URI)
}

func TestParse_MediaSequenceNumbers(t *testing.T) {
	pl, err := Parse([]byte(`#EXTM3U
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:41
#EXT-X-KEY:METHOD=NONE
#EXTINF:2.0,
a.ts
#EXTINF:1.5,
b.ts
`))
	require.NoError(t, err)
	assert.False(t, pl.Master)
	assert.Equal(t, 2*time.Second, pl.TargetDuration)
	assert.Equal(t, uint64(41), pl.MediaSequence)
	require.Len(t, pl.Segments, 2)
	assert.Equal(t, uint64(41), pl.Segments[0].Sequence)
	assert.Equal(t, uint64(42), pl.Segments[1].Sequence)
	assert.Equal(t, 1500*time.Millisecond, pl.Segments[1].Duration)
	assert.False(t, pl.IsVOD())
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("<html>not found</html>"))
	assert.ErrorIs(t, err, ErrNotM3U8)

	_, err = Parse(nil)
	assert.ErrorIs(t, err, ErrNotM3U8)

	_, err = Parse([]byte("#EXTM3U\n#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"skd://k\"\n#EXTINF:1,\na.ts\n"))
	assert.ErrorIs(t, err, ErrUnsupportedEncryption)

	_, err = Parse([]byte("#EXTM3U\n#EXT-X-TARGETDURATION:x\n"))
	assert.Error(t, err)
}

func TestParse_BOM(t *testing.T) {
	pl, err := Parse([]byte("\ufeff#EXTM3U\n#EXTINF:1,\na.ts\n"))
	require.NoError(t, err)
	assert.Len(t, pl.Segments, 1)
}

func TestParseAttributes(t *testing.T) {
	got := parseAttributes(`BANDWIDTH=1,CODECS="a,b",resolution=2x2,NAME="x"`)
	assert.Equal(t, map[string]string{
		"BANDWIDTH":  "1",
		"CODECS":     "a,b",
		"RESOLUTION": "2x2",
		"NAME":       "x",
	}, got)
}

func TestResolveURI(t *testing.T) {
	u, err := ResolveURI("http://cam:8888/screen/index.m3u8", "video1_stream.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "http://cam:8888/screen/video1_stream.m3u8", u)

	u, err = ResolveURI("http://cam:8888/screen/index.m3u8", "https://cdn/x.ts")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.ts", u)
}
