// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for remoto.
//
// Precedence is defaults, then the YAML file (strict), then REMOTO_* environment
// variables. The merged result is validated before it is handed out.
package config
