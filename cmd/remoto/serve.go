// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os"

	"github.com/ManuGH/remoto/internal/config"
	"github.com/ManuGH/remoto/internal/daemon"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the stream session daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			xglog.Configure(xglog.Config{
				Level:      cfg.Log.Level,
				Output:     os.Stdout,
				Service:    "remoto",
				Version:    version.Version,
				File:       cfg.Log.File,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			defer func() { _ = xglog.Close() }()

			logger := xglog.WithComponent("main")
			source := "env+defaults"
			if loader.Path() != "" {
				source = "file"
			}
			logger.Info().
				Str(xglog.FieldEvent, "config.loaded").
				Str("source", source).
				Str(xglog.FieldPath, loader.Path()).
				Msg("configuration loaded")
			logger.Info().
				Str(xglog.FieldEvent, "startup").
				Str("version", version.Version).
				Str("commit", version.Commit).
				Str("build_date", version.Date).
				Str("addr", cfg.API.ListenAddr).
				Str("data_dir", cfg.DataDir).
				Bool("auth", cfg.API.Password != "").
				Msg("starting remoto")

			ctx, stop := daemon.SignalContext(cmd.Context())
			defer stop()

			d, err := daemon.Build(ctx, config.NewHolder(cfg, loader), daemon.Options{Version: version.Version})
			if err != nil {
				logger.Error().Err(err).Str(xglog.FieldEvent, "startup.failed").Msg("daemon setup failed")
				return err
			}
			return daemon.RunAndClose(ctx, d)
		},
	}
}
