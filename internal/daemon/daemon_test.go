// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/remoto/internal/config"
	"github.com/ManuGH/remoto/internal/journal"
	"github.com/ManuGH/remoto/internal/statusfile"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveDecoder reports a manifest and one progress tick as soon as loading starts.
type liveDecoder struct {
	rep stream.Reporter
}

func (d *liveDecoder) LoadSource(string)    {}
func (d *liveDecoder) AttachSink(io.Writer) {}
func (d *liveDecoder) StopLoad()            {}
func (d *liveDecoder) RecoverMediaError()   {}
func (d *liveDecoder) Destroy()             {}
func (d *liveDecoder) StartLoad() {
	d.rep.ManifestLoaded()
	d.rep.Progress()
}

func liveDecoders(r stream.Reporter) stream.Decoder { return &liveDecoder{rep: r} }

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.API.RateLimit = 0
	cfg.Backend.URL = ""
	cfg.Stream.URL = "http://camera.local:8888"
	return cfg
}

func startDaemon(t *testing.T, cfg config.AppConfig) (*Daemon, string, func() error) {
	t.Helper()
	holder := config.NewHolder(cfg, config.NewLoader("", ""))
	d, err := Build(context.Background(), holder, Options{Version: "test", Decoders: liveDecoders})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- RunAndClose(ctx, d) }()

	addr := boundAddr(t, d.manager)
	stop := func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			return errors.New("daemon did not stop")
		}
	}
	return d, "http://" + addr, stop
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestDaemon_StartsConfiguredSession(t *testing.T) {
	cfg := testConfig(t)
	d, base, stop := startDaemon(t, cfg)

	require.Eventually(t, func() bool {
		var snap stream.Snapshot
		getJSON(t, base+"/api/v1/session", &snap)
		return snap.Status == stream.StatusLive
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, "http://camera.local:8888/screen/index.m3u8", d.Controller().Snapshot().URL)

	require.Eventually(t, func() bool {
		snap, err := statusfile.Read(d.StatusPath())
		return err == nil && snap.Status == stream.StatusLive
	}, 3*time.Second, 20*time.Millisecond)

	var hist struct {
		Entries []journal.Entry `json:"entries"`
	}
	require.Eventually(t, func() bool {
		return getJSON(t, base+"/api/v1/session/history", &hist) == http.StatusOK && len(hist.Entries) >= 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "live", hist.Entries[0].To)

	require.NoError(t, stop())

	// The final stop transition reached the journal before it closed.
	store, err := journal.Open(filepath.Join(cfg.DataDir, journalFileName))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	entries, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, stream.ReasonStop, entries[0].Reason)
}

func TestDaemon_HealthEndpoints(t *testing.T) {
	_, base, stop := startDaemon(t, testConfig(t))
	defer func() { require.NoError(t, stop()) }()

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, base+"/healthz?verbose=true", &body))
	assert.NotEmpty(t, body["status"])
}

func TestDaemon_NoURLWaitsForStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.URL = ""
	d, _, stop := startDaemon(t, cfg)
	defer func() { require.NoError(t, stop()) }()

	require.Never(t, func() bool { return d.Controller().Snapshot().Active }, 200*time.Millisecond, 20*time.Millisecond)
}

type recordingSink struct {
	mu   sync.Mutex
	seen []stream.Transition
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Handle(_ context.Context, t stream.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, t)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestFanout_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSink{err: errors.New("down")}
	good := &recordingSink{}
	f := NewFanout(bad, nil, good)

	ch := make(chan stream.Transition, 2)
	ch <- stream.Transition{To: stream.StatusConnecting, Reason: stream.ReasonStart}
	ch <- stream.Transition{To: stream.StatusLive, Reason: stream.ReasonProgress}
	close(ch)

	require.NoError(t, f.Run(context.Background(), ch))
	assert.Equal(t, 2, bad.count())
	assert.Equal(t, 2, good.count())
}

func TestFanout_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewFanout().Run(ctx, make(chan stream.Transition)))
}

type stubManager struct{ started chan struct{} }

func (m *stubManager) Start(ctx context.Context) error {
	close(m.started)
	<-ctx.Done()
	return nil
}
func (m *stubManager) Shutdown(context.Context) error            { return nil }
func (m *stubManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestApp_ReloadRestartsSessionOnURLChange(t *testing.T) {
	ctrl := stream.New(stream.Config{NewDecoder: liveDecoders})
	cfg := testConfig(t)
	holder := config.NewHolder(cfg, config.NewLoader("", ""))

	app, err := NewApp(AppOptions{Manager: &stubManager{started: make(chan struct{})}, Controller: ctrl, Holder: holder})
	require.NoError(t, err)
	app.reloadSignal = nil

	first := cfg.EffectiveStreamURL()
	next := cfg
	next.Stream.URL = "http://other.local:8888"
	app.applyConfig(cfg, next)
	require.NoError(t, ctrl.Flush(context.Background()))
	assert.Equal(t, "http://other.local:8888/screen/index.m3u8", ctrl.Snapshot().URL)

	// Same URL: the session is left alone.
	gen := ctrl.Snapshot().Generation
	app.applyConfig(next, next)
	require.NoError(t, ctrl.Flush(context.Background()))
	assert.Equal(t, gen, ctrl.Snapshot().Generation)
	assert.NotEqual(t, first, ctrl.Snapshot().URL)

	ctrl.Close()
}

func TestApp_ReloadWarnsAboutRestartOnlyChanges(t *testing.T) {
	ctrl := stream.New(stream.Config{NewDecoder: liveDecoders})
	defer ctrl.Close()
	cfg := testConfig(t)
	holder := config.NewHolder(cfg, config.NewLoader("", ""))

	app, err := NewApp(AppOptions{Manager: &stubManager{started: make(chan struct{})}, Controller: ctrl, Holder: holder})
	require.NoError(t, err)
	var buf bytes.Buffer
	app.logger = zerolog.New(&buf)

	next := cfg
	next.Stream.RetryBase = 5 * time.Second
	next.Stream.HealthInterval = 10 * time.Second
	app.applyConfig(cfg, next)

	out := buf.String()
	assert.Contains(t, out, `"event":"daemon.restart_required"`)
	assert.Contains(t, out, `"sections":["stream"]`)

	buf.Reset()
	app.applyConfig(next, next)
	assert.NotContains(t, buf.String(), "daemon.restart_required")
}

func TestApp_DiscoversURLWhenUnset(t *testing.T) {
	ctrl := stream.New(stream.Config{NewDecoder: liveDecoders})
	cfg := testConfig(t)
	cfg.Stream.URL = ""
	holder := config.NewHolder(cfg, config.NewLoader("", ""))

	app, err := NewApp(AppOptions{
		Manager:    &stubManager{started: make(chan struct{})},
		Controller: ctrl,
		Holder:     holder,
		Discover: func(context.Context) (string, error) {
			return "http://found.local/screen/index.m3u8", nil
		},
	})
	require.NoError(t, err)

	app.startInitialSession(context.Background())
	require.NoError(t, ctrl.Flush(context.Background()))
	assert.Equal(t, "http://found.local/screen/index.m3u8", ctrl.Snapshot().URL)
	ctrl.Close()
}

type countingPruner struct {
	mu     sync.Mutex
	calls  int
	cutoff time.Time
}

func (p *countingPruner) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.cutoff = olderThan
	return 1, nil
}

func TestApp_RunPrunesAndClosesController(t *testing.T) {
	ctrl := stream.New(stream.Config{NewDecoder: liveDecoders})
	pruner := &countingPruner{}
	mgr := &stubManager{started: make(chan struct{})}

	app, err := NewApp(AppOptions{Manager: mgr, Controller: ctrl, Pruner: pruner, Retention: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()
	<-mgr.started

	require.Eventually(t, func() bool {
		pruner.mu.Lock()
		defer pruner.mu.Unlock()
		return pruner.calls >= 1
	}, time.Second, 10*time.Millisecond)
	pruner.mu.Lock()
	assert.WithinDuration(t, time.Now().Add(-time.Hour), pruner.cutoff, 5*time.Second)
	pruner.mu.Unlock()

	cancel()
	require.NoError(t, <-errCh)
	assert.ErrorIs(t, ctrl.Start("http://x/y.m3u8"), stream.ErrControllerClosed)
}

func TestNewApp_Validation(t *testing.T) {
	_, err := NewApp(AppOptions{})
	require.ErrorIs(t, err, ErrMissingManager)
	_, err = NewApp(AppOptions{Manager: &stubManager{}})
	require.ErrorIs(t, err, ErrMissingSession)
}
