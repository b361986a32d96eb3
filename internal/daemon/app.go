// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/remoto/internal/config"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/rs/zerolog"
)

const (
	subscriberBuffer = 256
	discoverTimeout  = 10 * time.Second
)

// Pruner drops journal entries older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// URLDiscoverer asks a remote party for the stream URL when none is configured.
type URLDiscoverer func(ctx context.Context) (string, error)

// AppOptions are the parts an App orchestrates. Holder, Pruner and Discover are optional.
type AppOptions struct {
	Manager    Manager
	Controller *stream.Controller
	Holder     *config.Holder
	Fanout     *Fanout
	Pruner     Pruner
	Discover   URLDiscoverer

	// Retention is how long journal entries are kept (default 7 days).
	Retention time.Duration
	// PruneInterval is the time between prune passes (default 1h).
	PruneInterval time.Duration
}

// App owns the long-lived runtime: the session, transition fan-out, config reload and
// journal pruning. Server management is delegated to Manager.
type App struct {
	opts         AppOptions
	logger       zerolog.Logger
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(opts AppOptions) (*App, error) {
	if opts.Manager == nil {
		return nil, ErrMissingManager
	}
	if opts.Controller == nil {
		return nil, ErrMissingSession
	}
	if opts.Fanout == nil {
		opts.Fanout = NewFanout()
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}
	return &App{
		opts:         opts,
		logger:       xglog.WithComponent("daemon"),
		reloadSignal: syscall.SIGHUP,
	}, nil
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	ctrl := a.opts.Controller
	g, ctx := errgroup.WithContext(ctx)

	// The fan-out drains until the controller closes its subscribers, so the final
	// stop transition still reaches the journal.
	updates, unsubscribe := ctrl.Subscribe(subscriberBuffer)
	defer unsubscribe()
	g.Go(func() error {
		return a.opts.Fanout.Run(context.WithoutCancel(ctx), updates)
	})

	if h := a.opts.Holder; h != nil {
		// Config watcher is best-effort: startup should not fail if watcher cannot be started.
		if err := h.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		h.RegisterListener(applyCh)
		current := h.Get()
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case next := <-applyCh:
					a.applyConfig(current, next)
					current = next
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error { return a.watchReloadSignal(ctx, h) })
		}
	}

	if a.opts.Pruner != nil {
		g.Go(func() error { return a.pruneLoop(ctx) })
	}

	g.Go(func() error {
		a.startInitialSession(ctx)
		return nil
	})

	g.Go(func() error {
		err := a.opts.Manager.Start(ctx)
		// Closing the controller ends the fan-out.
		ctrl.Close()
		return err
	})

	err := g.Wait()
	if a.opts.Holder != nil {
		a.opts.Holder.Wait()
	}
	return err
}

func (a *App) startInitialSession(ctx context.Context) {
	url := ""
	if a.opts.Holder != nil {
		url = a.opts.Holder.Get().EffectiveStreamURL()
	}
	if url == "" && a.opts.Discover != nil {
		dctx, cancel := context.WithTimeout(ctx, discoverTimeout)
		discovered, err := a.opts.Discover(dctx)
		cancel()
		if err != nil {
			a.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "daemon.discover_failed").
				Msg("stream URL discovery failed")
		}
		url = discovered
	}
	if url == "" {
		a.logger.Warn().
			Str(xglog.FieldEvent, "daemon.no_stream_url").
			Msg("no stream URL configured; waiting for a start request")
		return
	}
	if err := a.opts.Controller.Start(url); err != nil {
		a.logger.Error().Err(err).
			Str(xglog.FieldEvent, "daemon.start_failed").
			Str(xglog.FieldURL, url).
			Msg("failed to start session")
	}
}

// applyConfig reacts to a reloaded configuration. The log level and stream URL
// apply now; everything else is reported as needing a restart.
func (a *App) applyConfig(prev, next config.AppConfig) {
	if keys := config.RestartRequired(prev, next); len(keys) > 0 {
		a.logger.Warn().
			Str(xglog.FieldEvent, "daemon.restart_required").
			Strs("sections", keys).
			Msg("config changes take effect after restart")
	}
	if next.Log.Level != prev.Log.Level {
		if lvl, err := zerolog.ParseLevel(next.Log.Level); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	oldURL, newURL := prev.EffectiveStreamURL(), next.EffectiveStreamURL()
	if newURL == "" || newURL == oldURL {
		return
	}
	a.logger.Info().
		Str(xglog.FieldEvent, "daemon.session_restart").
		Str("old", oldURL).
		Str(xglog.FieldURL, newURL).
		Msg("stream URL changed, restarting session")
	if err := a.opts.Controller.Start(newURL); err != nil {
		a.logger.Error().Err(err).
			Str(xglog.FieldEvent, "daemon.start_failed").
			Str(xglog.FieldURL, newURL).
			Msg("failed to restart session")
	}
}

func (a *App) watchReloadSignal(ctx context.Context, h *config.Holder) error {
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, a.reloadSignal)
	defer signal.Stop(hupChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hupChan:
			a.logger.Info().
				Str(xglog.FieldEvent, "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")

			if err := h.Reload(ctx); err != nil {
				a.logger.Warn().
					Err(err).
					Str(xglog.FieldEvent, "config.reload_failed").
					Msg("config reload failed")
			}
		}
	}
}

func (a *App) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.opts.PruneInterval)
	defer ticker.Stop()

	for {
		a.pruneOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) pruneOnce(ctx context.Context) {
	n, err := a.opts.Pruner.Prune(ctx, time.Now().Add(-a.opts.Retention))
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "journal.prune_failed").Msg("journal prune failed")
		}
		return
	}
	if n > 0 {
		a.logger.Info().
			Int64("removed", n).
			Str(xglog.FieldEvent, "journal.pruned").
			Msg("pruned old transitions")
	}
}
