// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/remoto/internal/stream"
)

// AppConfig is the fully merged runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	DataDir   string          `yaml:"dataDir"`
	Stream    StreamConfig    `yaml:"stream"`
	Backend   BackendConfig   `yaml:"backend"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StreamConfig controls the session controller and the HLS decoder.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	Path                 string        `yaml:"path"`
	RetryBase            time.Duration `yaml:"retryBase"`
	RetryCapExponent     int           `yaml:"retryCapExponent"`
	StaleAfter           time.Duration `yaml:"staleAfter"`
	HealthInterval       time.Duration `yaml:"healthInterval"`
	RequestTimeout       time.Duration `yaml:"requestTimeout"`
	SegmentRetries       int           `yaml:"segmentRetries"`
	MaxRequestsPerSecond float64       `yaml:"maxRequestsPerSecond"`
	// Output receives the TS payload. Empty discards it.
	Output string `yaml:"output"`
}

// BackendConfig points at the command backend.
type BackendConfig struct {
	URL          string        `yaml:"url"`
	Password     string        `yaml:"password"`
	Timeout      time.Duration `yaml:"timeout"`
	HistoryLimit int           `yaml:"historyLimit"`
}

// APIConfig controls the local HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit int    `yaml:"rateLimit"`
	Password  string `yaml:"password"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// RedisConfig enables the status bus when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the built-in configuration before any file or ENV is applied.
func Defaults() AppConfig {
	sc := stream.DefaultConfig()
	return AppConfig{
		DataDir: defaultDataDir(),
		Stream: StreamConfig{
			URL:                  "http://localhost:8888/screen/index.m3u8",
			Path:                 "screen",
			RetryBase:            sc.RetryBase,
			RetryCapExponent:     sc.RetryCapExponent,
			StaleAfter:           sc.StaleAfter,
			HealthInterval:       sc.HealthInterval,
			RequestTimeout:       5 * time.Second,
			SegmentRetries:       2,
			MaxRequestsPerSecond: 10,
		},
		Backend: BackendConfig{
			URL:          "http://localhost:8000",
			Timeout:      30 * time.Second,
			HistoryLimit: 10,
		},
		API: APIConfig{
			ListenAddr: ":8090",
			RateLimit:  120,
		},
		Log: LogConfig{
			Level:      "info",
			MaxAgeDays: 7,
		},
		Redis: RedisConfig{
			Channel: "remoto:stream:status",
			TTL:     time.Hour,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// ControllerConfig maps the stream section onto the controller's config.
func (c AppConfig) ControllerConfig() stream.Config {
	return stream.Config{
		RetryBase:        c.Stream.RetryBase,
		RetryCapExponent: c.Stream.RetryCapExponent,
		StaleAfter:       c.Stream.StaleAfter,
		HealthInterval:   c.Stream.HealthInterval,
	}
}

// EffectiveStreamURL returns the normalized playlist URL, or "" when none is configured.
func (c AppConfig) EffectiveStreamURL() string {
	return NormalizeStreamURL(c.Stream.URL, c.Stream.Path)
}
