// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"
	"time"

	"github.com/ManuGH/remoto/internal/stream"
)

// FuncChecker adapts a probe function. Optional probes report degraded instead of unhealthy.
type FuncChecker struct {
	name     string
	optional bool
	timeout  time.Duration
	probe    func(ctx context.Context) error
}

// NewFuncChecker creates a checker that fails the readiness probe when probe errors.
func NewFuncChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, probe: probe, timeout: 2 * time.Second}
}

// NewOptionalChecker creates a checker whose failures only degrade the service.
func NewOptionalChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	c := NewFuncChecker(name, probe)
	c.optional = true
	return c
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.probe(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}

// FileChecker checks that a file the daemon maintains exists and is non-empty.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker creates a checker for file existence
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{
		name: name,
		path: path,
	}
}

func (c *FileChecker) Name() string {
	return c.name
}

func (c *FileChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (optional)",
		}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusDegraded,
				Error:   "file not found",
				Message: c.path,
			}
		}
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}

	if info.IsDir() {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "expected file, got directory",
		}
	}

	if info.Size() == 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "file is empty",
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "file exists and readable",
	}
}

// SessionChecker reports the stream session's playback status.
// Only the error status, which waits for a manual retry, is unhealthy.
type SessionChecker struct {
	snapshot func() stream.Snapshot
}

// NewSessionChecker creates a checker over the controller's snapshot.
func NewSessionChecker(snapshot func() stream.Snapshot) *SessionChecker {
	return &SessionChecker{snapshot: snapshot}
}

func (c *SessionChecker) Name() string {
	return "stream_session"
}

func (c *SessionChecker) Check(_ context.Context) CheckResult {
	snap := c.snapshot()

	switch {
	case !snap.Active:
		return CheckResult{Status: StatusDegraded, Message: "no active session"}
	case snap.Status == stream.StatusLive:
		return CheckResult{Status: StatusHealthy, Message: "live"}
	case snap.Status == stream.StatusError:
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "manual retry required",
			Error:   snap.ErrorMessage,
		}
	default:
		return CheckResult{
			Status:  StatusDegraded,
			Message: string(snap.Status),
			Error:   snap.ErrorMessage,
		}
	}
}
