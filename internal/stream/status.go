// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"fmt"
	"strings"
	"time"
)

// Status is the single externally visible state of a stream session.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusBuffering  Status = "buffering"
	StatusPaused     Status = "paused"
	StatusError      Status = "error"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusConnecting, StatusLive, StatusBuffering, StatusPaused, StatusError}

// ErrorKind classifies a decoder fault.
type ErrorKind string

const (
	ErrorNetwork ErrorKind = "network"
	ErrorMedia   ErrorKind = "media"
	ErrorOther   ErrorKind = "other"
	// ErrorUnsupported is fatal and unrecoverable without a manual retry
	// (unsupported container, codec or key system).
	ErrorUnsupported ErrorKind = "unsupported"
)

// ParseErrorKind maps a wire value to an ErrorKind.
func ParseErrorKind(s string) (ErrorKind, error) {
	switch ErrorKind(strings.ToLower(strings.TrimSpace(s))) {
	case ErrorNetwork:
		return ErrorNetwork, nil
	case ErrorMedia:
		return ErrorMedia, nil
	case ErrorOther, "":
		return ErrorOther, nil
	case ErrorUnsupported:
		return ErrorUnsupported, nil
	}
	return ErrorOther, fmt.Errorf("unknown error kind %q", s)
}

// User-facing messages. Transient conditions read as low-key hints.
const (
	msgRecovering   = "Recovering playback..."
	msgWaiting      = "Waiting for stream..."
	msgStale        = "Waiting for stream data..."
	msgReconnecting = "Reconnecting..."
)

func retryPendingMessage(delay time.Duration) string {
	return fmt.Sprintf("Connection lost, retrying in %s...", delay)
}

func unsupportedMessage(detail string) string {
	if detail == "" {
		return "This stream cannot be played. Retry or reload."
	}
	return fmt.Sprintf("This stream cannot be played (%s). Retry or reload.", detail)
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	SessionID    string        `json:"sessionId,omitempty"`
	Generation   uint64        `json:"generation"`
	Active       bool          `json:"active"`
	URL          string        `json:"url,omitempty"`
	Status       Status        `json:"status"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	LastDataAt   time.Time     `json:"lastDataAt,omitempty"`
	RetryCount   int           `json:"retryCount"`
	Visible      bool          `json:"visible"`
	RetryPending bool          `json:"retryPending"`
	RetryDelay   time.Duration `json:"retryDelay,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Transition records one status change (or lifecycle event) of a session.
type Transition struct {
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Transition reasons.
const (
	ReasonStart        = "start"
	ReasonProgress     = "progress"
	ReasonNetworkError = "network_error"
	ReasonMediaError   = "media_error"
	ReasonOtherError   = "other_error"
	ReasonUnsupported  = "unsupported"
	ReasonStale        = "stale"
	ReasonHidden       = "hidden"
	ReasonVisible      = "visible"
	ReasonManualRetry  = "manual_retry"
	ReasonStop         = "stop"
)
