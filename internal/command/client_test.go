// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/remoto/internal/resilience"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend mimics the assistant backend's /voice and /config endpoints.
type fakeBackend struct {
	mu       sync.Mutex
	password string
	requests []voiceRequest
	status   int
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}
	user, pw, ok := r.BasicAuth()
	if !ok || user != "user" || pw != b.password {
		http.Error(w, `{"detail":"Incorrect password"}`, http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != 0 {
		http.Error(w, "backend exploded", b.status)
		return
	}

	switch r.URL.Path {
	case "/config":
		_ = json.NewEncoder(w).Encode(RemoteConfig{Password: b.password, StreamURL: "http://10.0.0.5:8888"})
	case "/voice":
		var req voiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		b.requests = append(b.requests, req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"assistant_message": fmt.Sprintf("done: %s", req.Text),
			"thread_id":         "thread-1",
			"analysis": map[string]any{
				"model":      "fast",
				"complexity": "simple",
				"tool_calls": []map[string]any{
					{"tool": "open_app", "args": map[string]any{"name": "Safari"}, "result": map[string]any{"success": true, "message": "opened"}},
				},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{BaseURL: url, Password: "s3cret", Timeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestSend_RoundTrip(t *testing.T) {
	backend := &fakeBackend{password: "s3cret"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", nil)
	reply, err := c.Send(context.Background(), "  open safari ")
	require.NoError(t, err)

	assert.Equal(t, "done: open safari", reply.AssistantMessage)
	require.NotNil(t, reply.Analysis)
	assert.Equal(t, "simple", reply.Analysis.Complexity)
	require.Len(t, reply.Analysis.ToolCalls, 1)
	assert.True(t, reply.Analysis.ToolCalls[0].Result.Success)
	assert.Equal(t, "Safari", reply.Analysis.ToolCalls[0].Args["name"])
	assert.Equal(t, "thread-1", c.ThreadID())

	_, err = c.Send(context.Background(), "close it")
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.requests, 2)
	assert.Equal(t, "", backend.requests[0].ThreadID)
	assert.Empty(t, backend.requests[0].History)
	assert.Equal(t, "thread-1", backend.requests[1].ThreadID)
	want := []Turn{{Role: "user", Content: "open safari"}, {Role: "assistant", Content: "done: open safari"}}
	if diff := cmp.Diff(want, backend.requests[1].History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_HistoryIsTrimmed(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{password: "s3cret"})
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.HistoryLimit = 4 })
	for i := 0; i < 5; i++ {
		_, err := c.Send(context.Background(), fmt.Sprintf("cmd %d", i))
		require.NoError(t, err)
	}

	h := c.History()
	require.Len(t, h, 4)
	assert.Equal(t, Turn{Role: "user", Content: "cmd 3"}, h[0])
	assert.Equal(t, Turn{Role: "assistant", Content: "done: cmd 4"}, h[3])
}

func TestSend_EmptyCommand(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", nil)
	_, err := c.Send(context.Background(), " \t")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestSend_WrongPasswordDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{password: "other"})
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker("command_test_auth", 1, time.Minute, resilience.WithIgnore(callerFault))
	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Breaker = breaker })

	for i := 0; i < 3; i++ {
		_, err := c.Send(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	assert.Equal(t, resilience.StateClosed, breaker.State())
	assert.Empty(t, c.History(), "failed exchanges are not remembered")
}

func TestSend_ServerErrorsOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{password: "s3cret", status: http.StatusBadGateway})
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker("command_test_5xx", 2, time.Minute)
	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Breaker = breaker })

	_, err := c.Send(context.Background(), "hi")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadGateway, be.Status)
	assert.ErrorIs(t, err, ErrBackendError)

	_, _ = c.Send(context.Background(), "hi")
	_, err = c.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestSend_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not-json"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestSend_Unreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", nil)
	_, err := c.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestThreadIDPersistence(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{password: "s3cret"})
	defer srv.Close()

	state := filepath.Join(t.TempDir(), "thread")
	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.StatePath = state })
	_, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)

	data, err := os.ReadFile(state)
	require.NoError(t, err)
	assert.Equal(t, "thread-1\n", string(data))

	restored := newTestClient(t, srv.URL, func(cfg *Config) { cfg.StatePath = state })
	assert.Equal(t, "thread-1", restored.ThreadID())

	require.NoError(t, restored.Reset())
	assert.Empty(t, restored.ThreadID())
	assert.NoFileExists(t, state)
}

func TestFetchConfig(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{password: "s3cret"})
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	rc, err := c.FetchConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8888", rc.StreamURL)

	c.SetPassword("nope")
	_, err = c.FetchConfig(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.NoError(t, c.Ping(context.Background()))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrEmptyCommand, "empty_command"},
		{&BackendError{Sentinel: ErrUnauthorized, Operation: "send", Status: 401}, "backend_unauthorized"},
		{&BackendError{Sentinel: ErrRejected, Operation: "send", Status: 422}, "backend_rejected"},
		{&BackendError{Sentinel: ErrBackendUnavailable, Operation: "send", Err: errors.New("dial tcp")}, "backend_unavailable"},
		{&BackendError{Sentinel: ErrBackendError, Operation: "send", Status: 502}, "backend_error"},
		{&BackendError{Sentinel: ErrBadResponse, Operation: "config"}, "backend_bad_response"},
		{fmt.Errorf("send: %w", resilience.ErrCircuitOpen), "backend_circuit_open"},
		{context.DeadlineExceeded, "backend_timeout"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "err=%v", tt.err)
	}
}
