// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestSetStreamStatus_OneHot(t *testing.T) {
	SetStreamStatus("buffering")
	for _, s := range streamStatuses {
		want := 0.0
		if s == "buffering" {
			want = 1.0
		}
		assert.Equal(t, want, gaugeValue(t, streamStatus, s), s)
	}

	SetStreamStatus("")
	for _, s := range streamStatuses {
		assert.Zero(t, gaugeValue(t, streamStatus, s), s)
	}
}

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("command", "open")
	assert.Equal(t, 1.0, gaugeValue(t, circuitBreakerState, "command", "open"))
	assert.Zero(t, gaugeValue(t, circuitBreakerState, "command", "closed"))
	assert.Zero(t, gaugeValue(t, circuitBreakerState, "command", "half-open"))
}

func TestCounters(t *testing.T) {
	before := counterValue(t, streamDecoderErrors.WithLabelValues("unknown", "true"))
	IncStreamDecoderError("", true)
	assert.Equal(t, before+1, counterValue(t, streamDecoderErrors.WithLabelValues("unknown", "true")))

	before = counterValue(t, streamRetries.WithLabelValues("manual"))
	IncStreamRetry("manual")
	assert.Equal(t, before+1, counterValue(t, streamRetries.WithLabelValues("manual")))

	before = counterValue(t, hlsSegmentBytes)
	ObserveHLSSegment("ok", 1024, 10*time.Millisecond)
	ObserveHLSSegment("http_error", 4096, time.Millisecond)
	assert.Equal(t, before+1024, counterValue(t, hlsSegmentBytes))

	before = counterValue(t, journalPruned)
	AddJournalPruned(0)
	AddJournalPruned(3)
	assert.Equal(t, before+3, counterValue(t, journalPruned))

	before = counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	assert.Equal(t, before+1, counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}

func TestPromhttpExposure(t *testing.T) {
	ObserveHTTPRequest("", http.MethodGet, 200, time.Millisecond)
	RecordStreamTransition("connecting", "live", "progress")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `remoto_http_requests_total{code="200",method="GET",route="unmatched"}`)
	assert.Contains(t, body, `remoto_stream_transitions_total{from="connecting",reason="progress",to="live"}`)
}
