// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means ENV only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults, then validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	cfg.DataDir = expandHome(cfg.DataDir)
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(cfg.DataDir, cfg.Log.File)
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing.
// Unknown fields fail with ErrUnknownConfigField.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	l.ConsumedEnvKeys[envDataDir] = struct{}{}
	if dir := ResolveDataDirFromEnv(); dir != "" {
		cfg.DataDir = dir
	}

	s := &cfg.Stream
	s.URL = l.envString("REMOTO_STREAM_URL", s.URL)
	s.Path = l.envString("REMOTO_STREAM_PATH", s.Path)
	s.RetryBase = l.envDuration("REMOTO_RETRY_BASE", s.RetryBase)
	s.RetryCapExponent = l.envInt("REMOTO_RETRY_CAP", s.RetryCapExponent)
	s.StaleAfter = l.envDuration("REMOTO_STALE_AFTER", s.StaleAfter)
	s.HealthInterval = l.envDuration("REMOTO_HEALTH_INTERVAL", s.HealthInterval)
	s.RequestTimeout = l.envDuration("REMOTO_REQUEST_TIMEOUT", s.RequestTimeout)
	s.SegmentRetries = l.envInt("REMOTO_SEGMENT_RETRIES", s.SegmentRetries)
	s.MaxRequestsPerSecond = l.envFloat("REMOTO_MAX_RPS", s.MaxRequestsPerSecond)
	s.Output = l.envString("REMOTO_STREAM_OUTPUT", s.Output)

	b := &cfg.Backend
	b.URL = l.envString("REMOTO_BACKEND_URL", b.URL)
	b.Password = l.envString("REMOTO_PASSWORD", b.Password)
	b.Timeout = l.envDuration("REMOTO_BACKEND_TIMEOUT", b.Timeout)
	b.HistoryLimit = l.envInt("REMOTO_HISTORY_LIMIT", b.HistoryLimit)

	a := &cfg.API
	a.ListenAddr = l.envString("REMOTO_LISTEN", a.ListenAddr)
	a.RateLimit = l.envInt("REMOTO_RATE_LIMIT", a.RateLimit)
	a.Password = l.envString("REMOTO_API_PASSWORD", a.Password)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = l.envString("REMOTO_LOG_FILE", cfg.Log.File)

	r := &cfg.Redis
	r.Addr = l.envString("REMOTO_REDIS_ADDR", r.Addr)
	r.Password = l.envString("REMOTO_REDIS_PASSWORD", r.Password)
	r.Channel = l.envString("REMOTO_REDIS_CHANNEL", r.Channel)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("REMOTO_OTEL_ENABLED", t.Enabled)
	t.Exporter = l.envString("REMOTO_OTEL_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("REMOTO_OTEL_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("REMOTO_OTEL_SAMPLING_RATE", t.SamplingRate)
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}
