// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/remoto/internal/api/middleware"
	"github.com/ManuGH/remoto/internal/command"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/telemetry"
)

type commandRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, "backend_disabled", "no command backend configured")
		return
	}
	var req commandRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	reply, err := s.deps.Commands.Send(r.Context(), req.Text)
	if err != nil {
		code := command.ErrorCode(err)
		middleware.AddSpanAttributes(r, telemetry.ErrorAttributes(code)...)
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "api.command_failed").
			Str(xglog.FieldErrorKind, code).
			Msg("command failed")
		writeError(w, commandStatus(code), code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
