// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ManuGH/remoto/internal/bus"
	"github.com/ManuGH/remoto/internal/config"
	"github.com/ManuGH/remoto/internal/statusfile"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/spf13/cobra"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last known session state",
		Long: `Show the last known session state.

The status file in the data directory is read first. When it is missing and
redis.addr is configured, the latest snapshot on the status bus is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configureCLILogging()
			_, cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			snap, source, err := lastSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSnapshot(cmd.OutOrStdout(), snap, source)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func lastSnapshot(ctx context.Context, cfg config.AppConfig) (stream.Snapshot, string, error) {
	path := statusfile.DefaultPath(cfg.DataDir)
	snap, err := statusfile.Read(path)
	if err == nil {
		return snap, path, nil
	}
	if !errors.Is(err, statusfile.ErrNotFound) || cfg.Redis.Addr == "" {
		return stream.Snapshot{}, "", err
	}

	pub, berr := bus.New(bus.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
	})
	if berr != nil {
		return stream.Snapshot{}, "", errors.Join(err, berr)
	}
	defer func() { _ = pub.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, berr = pub.Latest(ctx)
	if berr != nil {
		return stream.Snapshot{}, "", errors.Join(err, berr)
	}
	return snap, "redis://" + cfg.Redis.Addr, nil
}

func printSnapshot(w io.Writer, snap stream.Snapshot, source string) error {
	state := string(snap.Status)
	if !snap.Active {
		state += " (no active session)"
	}
	lines := []string{
		fmt.Sprintf("Status:      %s", state),
	}
	if snap.URL != "" {
		lines = append(lines, fmt.Sprintf("URL:         %s", snap.URL))
	}
	if snap.ErrorMessage != "" {
		lines = append(lines, fmt.Sprintf("Message:     %s", snap.ErrorMessage))
	}
	lines = append(lines,
		fmt.Sprintf("Retries:     %d", snap.RetryCount),
		fmt.Sprintf("Visible:     %t", snap.Visible),
	)
	if snap.RetryPending {
		lines = append(lines, fmt.Sprintf("Next retry:  in %s", snap.RetryDelay))
	}
	if !snap.LastDataAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Last data:   %s", snap.LastDataAt.Local().Format(time.RFC3339)))
	}
	if !snap.UpdatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Updated:     %s", snap.UpdatedAt.Local().Format(time.RFC3339)))
	}
	lines = append(lines, fmt.Sprintf("Source:      %s", source))

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
