// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

const envDataDir = "REMOTO_DATA"

// ResolveDataDirFromEnv resolves the data directory from the environment, if set.
func ResolveDataDirFromEnv() string {
	return expandHome(strings.TrimSpace(ParseString(envDataDir, "")))
}

func defaultDataDir() string {
	return expandHome("~/.remoto/data")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".remoto", strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
