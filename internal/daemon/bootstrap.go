// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the stream controller to its decoder, sinks and API, and runs them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ManuGH/remoto/internal/api"
	"github.com/ManuGH/remoto/internal/bus"
	"github.com/ManuGH/remoto/internal/command"
	"github.com/ManuGH/remoto/internal/config"
	"github.com/ManuGH/remoto/internal/health"
	"github.com/ManuGH/remoto/internal/hls"
	"github.com/ManuGH/remoto/internal/journal"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/statusfile"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/ManuGH/remoto/internal/telemetry"
	"github.com/rs/zerolog"
)

const (
	journalFileName = "journal.db"
	threadFileName  = "thread_id"
)

// Options override parts of the runtime, mainly for tests.
type Options struct {
	Version string
	// Decoders replaces the HLS player.
	Decoders stream.DecoderFactory
	// Clock replaces the wall clock of the controller.
	Clock stream.Clock
	// SkipStartupChecks disables the pre-flight checks.
	SkipStartupChecks bool
}

// Daemon is a fully wired runtime. Run it once, then Close it.
type Daemon struct {
	app        *App
	manager    Manager
	controller *stream.Controller
	health     *health.Manager
	statusPath string

	closers []namedCloser
	logger  zerolog.Logger
}

type namedCloser struct {
	name  string
	close func(ctx context.Context) error
}

// Build creates every component from the holder's current configuration.
// On error, everything already opened is closed again.
func Build(ctx context.Context, holder *config.Holder, opts Options) (_ *Daemon, err error) {
	cfg := holder.Get()
	d := &Daemon{logger: xglog.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = d.Close(context.WithoutCancel(ctx))
		}
	}()

	if !opts.SkipStartupChecks {
		if err := health.PerformStartupChecks(ctx, cfg); err != nil {
			return nil, err
		}
	}

	d.initTelemetry(ctx, cfg, opts.Version)

	store, err := journal.Open(filepath.Join(cfg.DataDir, journalFileName))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	d.addCloser("journal", func(context.Context) error { return store.Close() })

	var publisher *bus.Publisher
	if cfg.Redis.Addr != "" {
		var busErr error
		publisher, busErr = bus.New(bus.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			TTL:      cfg.Redis.TTL,
		})
		if busErr != nil {
			// The bus is an optional mirror; the session runs without it.
			d.logger.Warn().Err(busErr).
				Str(xglog.FieldEvent, "bus.unavailable").
				Str("addr", cfg.Redis.Addr).
				Msg("status bus disabled")
			publisher = nil
		} else {
			d.addCloser("bus", func(context.Context) error { return publisher.Close() })
		}
	}

	var commands *command.Client
	if cfg.Backend.URL != "" {
		commands, err = command.New(command.Config{
			BaseURL:      cfg.Backend.URL,
			Password:     cfg.Backend.Password,
			Timeout:      cfg.Backend.Timeout,
			HistoryLimit: cfg.Backend.HistoryLimit,
			StatePath:    filepath.Join(cfg.DataDir, threadFileName),
		})
		if err != nil {
			return nil, fmt.Errorf("command client: %w", err)
		}
	}

	sink, err := openSink(cfg.Stream.Output)
	if err != nil {
		return nil, err
	}
	if c, ok := sink.(io.Closer); ok && sink != os.Stdout {
		d.addCloser("stream_output", func(context.Context) error { return c.Close() })
	}

	ctrlCfg := cfg.ControllerConfig()
	ctrlCfg.Sink = sink
	ctrlCfg.Clock = opts.Clock
	ctrlCfg.NewDecoder = opts.Decoders
	if ctrlCfg.NewDecoder == nil {
		ctrlCfg.NewDecoder = hls.Factory(hls.Options{
			RequestTimeout:       cfg.Stream.RequestTimeout,
			SegmentRetries:       cfg.Stream.SegmentRetries,
			MaxRequestsPerSecond: cfg.Stream.MaxRequestsPerSecond,
		})
	}
	d.controller = stream.New(ctrlCfg)

	d.statusPath = statusfile.DefaultPath(cfg.DataDir)
	sinks := []Sink{
		NewSink("journal", store.Record),
		NewSink("status_file", func(_ context.Context, t stream.Transition) error {
			return statusfile.Write(d.statusPath, t.Snapshot)
		}),
	}
	if publisher != nil {
		sinks = append(sinks, NewSink("bus", publisher.Publish))
	}

	d.health = health.NewManager(opts.Version)
	d.health.RegisterChecker(health.NewSessionChecker(d.controller.Snapshot))
	d.health.RegisterChecker(health.NewFuncChecker("journal", store.Check))
	d.health.RegisterChecker(health.NewFileChecker("status_file", d.statusPath))
	if publisher != nil {
		d.health.RegisterChecker(health.NewOptionalChecker("redis", publisher.Ping))
	}
	if commands != nil {
		d.health.RegisterChecker(health.NewOptionalChecker("backend", commands.Ping))
	}

	deps := api.Deps{
		Session:   d.controller,
		History:   store,
		Health:    d.health,
		StreamURL: func() string { return holder.Get().EffectiveStreamURL() },
	}
	if commands != nil {
		deps.Commands = commands
	}
	apiCfg := api.Config{
		Password:  cfg.API.Password,
		RateLimit: cfg.API.RateLimit,
	}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = telemetry.ServiceName
	}
	srv := api.New(apiCfg, deps)

	d.manager, err = NewManager(DefaultServerConfig(cfg.API.ListenAddr), srv.Handler())
	if err != nil {
		return nil, err
	}
	d.manager.RegisterShutdownHook("stream_controller", func(context.Context) error {
		d.controller.Close()
		return nil
	})

	appOpts := AppOptions{
		Manager:    d.manager,
		Controller: d.controller,
		Holder:     holder,
		Fanout:     NewFanout(sinks...),
		Pruner:     store,
	}
	if commands != nil {
		appOpts.Discover = discoverer(commands, cfg)
	}
	d.app, err = NewApp(appOpts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Run blocks until ctx is cancelled or the server fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str(xglog.FieldEvent, "daemon.start").
		Msg("starting remoto daemon")
	return d.app.Run(ctx)
}

// Controller returns the session controller.
func (d *Daemon) Controller() *stream.Controller { return d.controller }

// StatusPath returns where the status file is written.
func (d *Daemon) StatusPath() string { return d.statusPath }

// Close releases resources in reverse order of creation.
func (d *Daemon) Close(ctx context.Context) error {
	if d.controller != nil {
		d.controller.Close()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Daemon) addCloser(name string, fn func(ctx context.Context) error) {
	d.closers = append(d.closers, namedCloser{name: name, close: fn})
}

// initTelemetry is best-effort: the daemon runs without tracing when the exporter fails.
func (d *Daemon) initTelemetry(ctx context.Context, cfg config.AppConfig, version string) {
	if !cfg.Telemetry.Enabled {
		return
	}
	telCfg := telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		Endpoint:     cfg.Telemetry.Endpoint,
		SamplingRate: cfg.Telemetry.SamplingRate,
		Version:      version,
	}
	provider, err := telemetry.NewProvider(ctx, telCfg)
	if err != nil {
		d.logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
		return
	}
	d.addCloser("telemetry", provider.Shutdown)
	d.logger.Info().
		Str("exporter", telCfg.Exporter).
		Str("endpoint", telCfg.Endpoint).
		Float64("sampling_rate", telCfg.SamplingRate).
		Msg("telemetry initialized")
}

func discoverer(client *command.Client, cfg config.AppConfig) URLDiscoverer {
	return func(ctx context.Context) (string, error) {
		rc, err := client.FetchConfig(ctx)
		if err != nil {
			return "", err
		}
		if rc.Password != "" && cfg.Backend.Password == "" {
			client.SetPassword(rc.Password)
		}
		return config.NormalizeStreamURL(rc.StreamURL, cfg.Stream.Path), nil
	}
}

func openSink(output string) (io.Writer, error) {
	switch output {
	case "":
		return io.Discard, nil
	case "-":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open stream output: %w", err)
	}
	return f, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// closeTimeout bounds Close after Run returns.
const closeTimeout = 5 * time.Second

// RunAndClose runs d and then closes it within closeTimeout.
func RunAndClose(ctx context.Context, d *Daemon) error {
	runErr := d.Run(ctx)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	return errors.Join(runErr, d.Close(closeCtx))
}
