// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/remoto/internal/bus"
	"github.com/ManuGH/remoto/internal/config"
	"github.com/ManuGH/remoto/internal/daemon"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	source string
	json   bool
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow session transitions live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configureCLILogging()
			_, cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := daemon.SignalContext(cmd.Context())
			defer stop()

			emit := func(t stream.Transition) error { return printTransition(cmd.OutOrStdout(), t, opts.json) }
			switch opts.source {
			case "api":
				return watchAPI(ctx, newAPIClient(flags, cfg, 0), emit)
			case "bus":
				return watchBus(ctx, cfg, emit)
			default:
				return fmt.Errorf("unknown source %q (want api or bus)", opts.source)
			}
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "api", "where to read transitions from: api (SSE) or bus (Redis)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print raw JSON lines")
	return cmd
}

func watchAPI(ctx context.Context, c *apiClient, handle func(stream.Transition) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/session/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := decodeResponse(resp, nil); err != nil {
		return err
	}

	err = readEvents(resp.Body, func(event string, data []byte) error {
		switch event {
		case "snapshot":
			var snap stream.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return err
			}
			return handle(stream.Transition{From: snap.Status, To: snap.Status, Reason: "snapshot", At: snap.UpdatedAt, Snapshot: snap})
		case "transition":
			var t stream.Transition
			if err := json.Unmarshal(data, &t); err != nil {
				return err
			}
			return handle(t)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses a server-sent event stream. Comment lines are skipped.
func readEvents(r io.Reader, fn func(event string, data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if event == "" {
					event = "message"
				}
				if err := fn(event, []byte(data.String())); err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func watchBus(ctx context.Context, cfg config.AppConfig, handle func(stream.Transition) error) error {
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is not configured")
	}
	pub, err := bus.New(bus.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
	})
	if err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()

	updates, err := pub.Subscribe(ctx)
	if err != nil {
		return err
	}
	for t := range updates {
		if err := handle(t); err != nil {
			return err
		}
	}
	return nil
}

func printTransition(w io.Writer, t stream.Transition, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(t)
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	line := fmt.Sprintf("%s  %-10s -> %-10s %s", at.Local().Format(time.TimeOnly), t.From, t.To, t.Reason)
	if msg := t.Snapshot.ErrorMessage; msg != "" {
		line += "  " + msg
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
