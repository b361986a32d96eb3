// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/remoto/internal/resilience"
)

var (
	// ErrEmptyCommand is returned by Send for blank text.
	ErrEmptyCommand = errors.New("command text is empty")

	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized       = errors.New("backend: wrong password")
	ErrRejected           = errors.New("backend: request rejected (4xx)")
	ErrBackendUnavailable = errors.New("backend: host unreachable or transport failure")
	ErrBackendError       = errors.New("backend: internal error (5xx)")
	ErrBadResponse        = errors.New("backend: invalid response format")
)

// BackendError wraps a sentinel with request context.
type BackendError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("command: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// callerFault reports errors the breaker must not count against the backend.
func callerFault(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, context.Canceled)
}

func statusSentinel(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code >= 500:
		return ErrBackendError
	default:
		return ErrRejected
	}
}

// ErrorCode maps an error from this package to a short machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCommand):
		return "empty_command"
	case errors.Is(err, ErrUnauthorized):
		return "backend_unauthorized"
	case errors.Is(err, ErrRejected):
		return "backend_rejected"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrBackendError):
		return "backend_error"
	case errors.Is(err, ErrBadResponse):
		return "backend_bad_response"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "backend_circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "backend_timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal_error"
	}
}
