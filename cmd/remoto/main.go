// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command remoto runs the stream session daemon and talks to a running one.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/remoto/internal/config"
	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/version"
	"github.com/spf13/cobra"
)

const defaultConfigName = "config.yaml"

type rootFlags struct {
	configPath string
	apiURL     string
	password   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "remoto",
		Short:         "Reconnecting live-stream session daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&flags.apiURL, "api", "", "base URL of a running daemon (default from api.listenAddr)")
	root.PersistentFlags().StringVar(&flags.password, "password", "", "API password (default from api.password)")

	root.AddCommand(
		newServeCmd(flags),
		newWatchCmd(flags),
		newSendCmd(flags),
		newStatusCmd(flags),
		newHealthcheckCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath prefers --config, then ${REMOTO_DATA}/config.yaml when it exists.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := config.ResolveDataDirFromEnv()
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, defaultConfigName)
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

func loadConfig(flags *rootFlags) (*config.Loader, config.AppConfig, error) {
	loader := config.NewLoader(resolveConfigPath(flags.configPath), version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, config.AppConfig{}, err
	}
	return loader, cfg, nil
}

// configureCLILogging keeps client subcommands quiet unless something goes wrong.
func configureCLILogging() {
	xglog.Configure(xglog.Config{
		Level:   "warn",
		Output:  os.Stderr,
		Service: "remoto",
		Version: version.Version,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
