// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/metrics"
)

const sseBuffer = 32

// handleEvents streams the current snapshot followed by every transition as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	updates, cancel := s.deps.Session.Subscribe(sseBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncSSEClients()
	defer metrics.DecSSEClients()

	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Debug().Str(xglog.FieldEvent, "api.sse_open").Msg("event stream opened")
	defer logger.Debug().Str(xglog.FieldEvent, "api.sse_close").Msg("event stream closed")

	if err := writeEvent(w, "snapshot", s.deps.Session.Snapshot()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case t, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "transition", t); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
