// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var streamStatuses = []string{"connecting", "live", "buffering", "paused", "error"}

var (
	// streamStatus is one-hot over streamStatuses; all zero while no session is active.
	streamStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "remoto_stream_status",
		Help: "Current stream session status (active status=1, others 0)",
	}, []string{"status"})

	streamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_stream_transitions_total",
		Help: "Stream status changes by source, target and reason",
	}, []string{"from", "to", "reason"})

	streamProgress = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoto_stream_progress_total",
		Help: "Progress notifications (fragment buffered or frame rendered)",
	})

	streamDecoderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_stream_decoder_errors_total",
		Help: "Decoder errors by kind and fatality",
	}, []string{"kind", "fatal"})

	streamRetryDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "remoto_stream_retry_delay_seconds",
		Help:    "Scheduled reconnect backoff delays",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	streamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_stream_retries_total",
		Help: "Reconnect attempts by trigger (backoff|manual)",
	}, []string{"trigger"})

	streamStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoto_stream_stalls_total",
		Help: "Live sessions demoted to buffering by the staleness check",
	})

	streamStaleCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_stream_stale_callbacks_total",
		Help: "Callbacks ignored because their session generation is gone",
	}, []string{"kind"})

	streamSubscriberDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoto_stream_subscriber_drops_total",
		Help: "Transitions dropped because a subscriber buffer was full",
	})
)

// SetStreamStatus marks status as the active one. An empty status clears all.
func SetStreamStatus(status string) {
	for _, s := range streamStatuses {
		value := 0.0
		if s == status {
			value = 1.0
		}
		streamStatus.WithLabelValues(s).Set(value)
	}
}

// RecordStreamTransition counts one status change.
func RecordStreamTransition(from, to, reason string) {
	streamTransitions.WithLabelValues(from, to, reason).Inc()
}

func IncStreamProgress() {
	streamProgress.Inc()
}

func IncStreamDecoderError(kind string, fatal bool) {
	if kind == "" {
		kind = "unknown"
	}
	streamDecoderErrors.WithLabelValues(kind, strconv.FormatBool(fatal)).Inc()
}

func ObserveStreamRetryDelay(d time.Duration) {
	streamRetryDelay.Observe(d.Seconds())
}

func IncStreamRetry(trigger string) {
	streamRetries.WithLabelValues(trigger).Inc()
}

func IncStreamStall() {
	streamStalls.Inc()
}

func IncStreamStaleCallback(kind string) {
	streamStaleCallbacks.WithLabelValues(kind).Inc()
}

func IncStreamSubscriberDrop() {
	streamSubscriberDrops.Inc()
}
