// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/remoto/internal/api/middleware"
	"github.com/ManuGH/remoto/internal/journal"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/ManuGH/remoto/internal/telemetry"
)

const (
	defaultHistoryLimit = 50
	flushTimeout        = 2 * time.Second
)

type startRequest struct {
	URL string `json:"url"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// HistoryResponse is the body of GET /api/v1/session/history.
type HistoryResponse struct {
	Entries []journal.Entry `json:"entries"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, r, s.deps.Session.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		url = strings.TrimSpace(s.deps.StreamURL())
	}
	if url == "" {
		writeError(w, http.StatusBadRequest, "no_stream_url", "no stream URL given or configured")
		return
	}
	if err := s.deps.Session.Start(url); err != nil {
		writeSessionError(w, err)
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "api.session_start").
		Str(xglog.FieldURL, url).
		Msg("session start requested")
	s.flushAndWrite(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Stop()
	s.flushAndWrite(w, r)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Retry()
	s.flushAndWrite(w, r)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", `field "visible" is required`)
		return
	}
	s.deps.Session.SetVisible(*req.Visible)
	s.flushAndWrite(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "transition journal is disabled")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, journal.MaxRecent)
	}

	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).
			Str(xglog.FieldEvent, "api.history_failed").
			Msg("failed to read transition history")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read history")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// flushAndWrite waits for the queued command to be applied, then answers with the snapshot.
func (s *Server) flushAndWrite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), flushTimeout)
	defer cancel()
	if err := s.deps.Session.Flush(ctx); err != nil {
		writeSessionError(w, err)
		return
	}
	s.writeSnapshot(w, r, s.deps.Session.Snapshot())
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, snap stream.Snapshot) {
	middleware.AddSpanAttributes(r, telemetry.SessionAttributes(snap.SessionID, snap.URL, string(snap.Status))...)
	writeJSON(w, http.StatusOK, snap)
}
