// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hlsPlaylistFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_hls_playlist_fetches_total",
		Help: "Playlist fetches by outcome (ok|http_error|transport_error|parse_error)",
	}, []string{"outcome"})

	hlsSegmentFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_hls_segment_fetches_total",
		Help: "Media segment fetches by outcome",
	}, []string{"outcome"})

	hlsSegmentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoto_hls_segment_bytes_total",
		Help: "Bytes of media segments written to the sink",
	})

	hlsSegmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "remoto_hls_segment_fetch_seconds",
		Help:    "Time to download one media segment",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	})
)

func IncHLSPlaylistFetch(outcome string) {
	hlsPlaylistFetches.WithLabelValues(outcome).Inc()
}

// ObserveHLSSegment records a segment fetch. bytes is only counted on success.
func ObserveHLSSegment(outcome string, bytes int64, d time.Duration) {
	hlsSegmentFetches.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		hlsSegmentBytes.Add(float64(bytes))
		hlsSegmentLatency.Observe(d.Seconds())
	}
}
