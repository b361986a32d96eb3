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
	commandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_commands_total",
		Help: "Voice/text commands sent to the backend by result",
	}, []string{"result"}) // result=success|failure|rejected

	commandLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "remoto_command_duration_seconds",
		Help:    "Round-trip time of a command request",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	})

	commandToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_command_tool_calls_total",
		Help: "Tool calls reported by the backend by tool and outcome",
	}, []string{"tool", "outcome"})
)

// ObserveCommand records one command round trip.
func ObserveCommand(result string, d time.Duration) {
	commandsSent.WithLabelValues(result).Inc()
	commandLatency.Observe(d.Seconds())
}

func IncCommandToolCall(tool string, success bool) {
	if tool == "" {
		tool = "unknown"
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	commandToolCalls.WithLabelValues(tool, outcome).Inc()
}
