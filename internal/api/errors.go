// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/remoto/internal/stream"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an {"error": code, "detail": message} response
func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Error: code, Detail: detail})
}

// writeSessionError maps controller errors onto HTTP responses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, "no_stream_url", "no stream URL given or configured")
	case errors.Is(err, stream.ErrControllerClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// commandStatus maps command client failures onto HTTP status codes.
func commandStatus(code string) int {
	switch code {
	case "empty_command":
		return http.StatusBadRequest
	case "backend_circuit_open":
		return http.StatusServiceUnavailable
	case "backend_timeout":
		return http.StatusGatewayTimeout
	case "backend_unauthorized", "backend_rejected", "backend_unavailable",
		"backend_error", "backend_bad_response":
		return http.StatusBadGateway
	case "canceled":
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a request body strictly. An empty body leaves v untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	if r.Body == nil || (allowEmpty && r.ContentLength == 0) {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
