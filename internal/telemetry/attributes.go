// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Session attributes
	SessionIDKey     = "stream.session_id"
	SessionURLKey    = "stream.url"
	SessionStatusKey = "stream.status"
	SessionReasonKey = "stream.reason"

	// Command attributes
	CommandThreadIDKey   = "command.thread_id"
	CommandHistoryLenKey = "command.history_len"
	CommandModelKey      = "command.model"
	CommandComplexityKey = "command.complexity"
	CommandToolCallsKey  = "command.tool_calls"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates stream session span attributes. Empty values are omitted.
func SessionAttributes(sessionID, url, status string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if url != "" {
		attrs = append(attrs, attribute.String(SessionURLKey, url))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(SessionStatusKey, status))
	}
	return attrs
}

// CommandRequestAttributes describes an outgoing command.
func CommandRequestAttributes(threadID string, historyLen int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandThreadIDKey, threadID),
		attribute.Int(CommandHistoryLenKey, historyLen),
	}
}

// CommandAnalysisAttributes describes how the backend handled a command.
func CommandAnalysisAttributes(model, complexity string, toolCalls int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandModelKey, model),
		attribute.String(CommandComplexityKey, complexity),
		attribute.Int(CommandToolCallsKey, toolCalls),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
