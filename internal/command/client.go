// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package command talks to the assistant backend: it forwards typed commands
// to /voice and discovers the stream location through /config.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/metrics"
	"github.com/ManuGH/remoto/internal/resilience"
	"github.com/ManuGH/remoto/internal/telemetry"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

const (
	basicAuthUser   = "user"
	maxErrorBody    = 512
	maxResponseBody = 32 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	Password     string
	Timeout      time.Duration // per request (default 30s)
	HistoryLimit int           // turns sent with each command (default 10)
	StatePath    string        // thread id file; empty keeps it in memory only
	HTTPClient   *http.Client
	Breaker      *resilience.CircuitBreaker
}

// Turn is one conversation entry sent back as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolResult is the outcome of one tool invocation on the backend.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolCall is a tool the assistant ran while handling a command.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result ToolResult     `json:"result"`
}

// Analysis describes how the backend handled a command.
type Analysis struct {
	Model      string     `json:"model,omitempty"`
	Complexity string     `json:"complexity,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Reply is the backend's answer to a command.
type Reply struct {
	AssistantMessage string    `json:"assistant_message"`
	ThreadID         string    `json:"thread_id,omitempty"`
	Analysis         *Analysis `json:"analysis,omitempty"`
	AudioBase64      string    `json:"assistant_audio_base64,omitempty"`
}

// RemoteConfig is the backend's /config document.
type RemoteConfig struct {
	Password  string `json:"password,omitempty"`
	StreamURL string `json:"streamUrl,omitempty"`
}

type voiceRequest struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id"`
	History  []Turn `json:"history"`
}

// Client is safe for concurrent use; commands are sent one at a time so the
// conversation history stays ordered.
type Client struct {
	base      string
	password  string
	limit     int
	statePath string
	http      *http.Client
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger

	sendMu   sync.Mutex
	mu       sync.Mutex
	threadID string
	history  []Turn
}

// New builds a Client and restores a persisted thread id.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("command: backend url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("command", 3, 30*time.Second, resilience.WithIgnore(callerFault))
	}

	c := &Client{
		base:      base,
		password:  cfg.Password,
		limit:     cfg.HistoryLimit,
		statePath: cfg.StatePath,
		http:      httpClient,
		breaker:   breaker,
		logger:    xglog.WithComponent("command"),
	}

	if c.statePath != "" {
		data, err := os.ReadFile(c.statePath)
		switch {
		case err == nil:
			c.threadID = strings.TrimSpace(string(data))
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read thread state: %w", err)
		}
	}
	return c, nil
}

// ThreadID returns the conversation thread assigned by the backend.
func (c *Client) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// History returns a copy of the retained conversation turns.
func (c *Client) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.history...)
}

// SetPassword replaces the basic-auth password, e.g. after FetchConfig.
func (c *Client) SetPassword(pw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = pw
}

// Reset forgets the thread and the history.
func (c *Client) Reset() error {
	c.mu.Lock()
	c.threadID = ""
	c.history = nil
	c.mu.Unlock()

	if c.statePath == "" {
		return nil
	}
	if err := os.Remove(c.statePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove thread state: %w", err)
	}
	return nil
}

// Send forwards one command and records the exchange in the history.
func (c *Client) Send(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCommand
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ctx, span := telemetry.Tracer("remoto/command").Start(ctx, "command.send")
	defer span.End()

	c.mu.Lock()
	body := voiceRequest{Text: text, ThreadID: c.threadID, History: append([]Turn{}, c.history...)}
	c.mu.Unlock()
	span.SetAttributes(telemetry.CommandRequestAttributes(body.ThreadID, len(body.History))...)

	start := time.Now()
	var reply Reply
	err := c.breaker.Execute(func() error {
		return c.do(ctx, "send", http.MethodPost, "/voice", body, &reply)
	})
	elapsed := time.Since(start)

	if err != nil {
		result := "failure"
		if callerFault(err) {
			result = "rejected"
		}
		metrics.ObserveCommand(result, elapsed)
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(ErrorCode(err))...)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().
			Str(xglog.FieldEvent, "command.failed").
			Str(xglog.FieldThreadID, body.ThreadID).
			Dur(xglog.FieldDuration, elapsed).
			Err(err).
			Msg("command failed")
		return nil, err
	}
	metrics.ObserveCommand("success", elapsed)

	c.remember(text, &reply)
	if reply.ThreadID != "" && reply.ThreadID != body.ThreadID {
		if err := c.persistThread(reply.ThreadID); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldEvent, "command.thread_persist_failed").Msg("could not persist thread id")
		}
	}

	if reply.Analysis != nil {
		for _, tc := range reply.Analysis.ToolCalls {
			metrics.IncCommandToolCall(tc.Tool, tc.Result.Success)
		}
		span.SetAttributes(telemetry.CommandAnalysisAttributes(
			reply.Analysis.Model, reply.Analysis.Complexity, len(reply.Analysis.ToolCalls))...)
	}

	c.logger.Info().
		Str(xglog.FieldEvent, "command.sent").
		Str(xglog.FieldThreadID, c.ThreadID()).
		Dur(xglog.FieldDuration, elapsed).
		Msg("command answered")
	return &reply, nil
}

func (c *Client) remember(text string, reply *Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reply.ThreadID != "" {
		c.threadID = reply.ThreadID
	}
	c.history = append(c.history,
		Turn{Role: "user", Content: text},
		Turn{Role: "assistant", Content: reply.AssistantMessage},
	)
	if n := len(c.history); n > c.limit {
		c.history = append([]Turn(nil), c.history[n-c.limit:]...)
	}
}

func (c *Client) persistThread(id string) error {
	if c.statePath == "" {
		return nil
	}
	pendingFile, err := renameio.NewPendingFile(c.statePath, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending thread file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("write thread id: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace thread file: %w", err)
	}
	return nil
}

// FetchConfig reads the backend's /config document.
func (c *Client) FetchConfig(ctx context.Context) (*RemoteConfig, error) {
	ctx, span := telemetry.Tracer("remoto/command").Start(ctx, "command.fetch_config")
	defer span.End()

	var rc RemoteConfig
	err := c.breaker.Execute(func() error {
		return c.do(ctx, "config", http.MethodGet, "/config", nil, &rc)
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(ErrorCode(err))...)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &rc, nil
}

// Ping checks the backend's unauthenticated /health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		blob, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	pw := c.password
	c.mu.Unlock()
	if pw != "" {
		req.SetBasicAuth(basicAuthUser, pw)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &BackendError{Sentinel: ErrBackendUnavailable, Operation: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &BackendError{
			Sentinel:  statusSentinel(res.StatusCode),
			Operation: op,
			Status:    res.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBody)).Decode(out); err != nil {
		return &BackendError{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode, Err: err}
	}
	return nil
}
