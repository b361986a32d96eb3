// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/remoto/internal/validate"
	"github.com/rs/zerolog"
)

// Validate checks the merged configuration and creates the data directory if missing.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)

	// An empty stream URL is allowed; the daemon then asks the backend for one.
	if u := cfg.EffectiveStreamURL(); u != "" {
		v.StreamURL("stream.url", u)
	}
	v.MinDuration("stream.retryBase", cfg.Stream.RetryBase, 10*time.Millisecond)
	v.Range("stream.retryCapExponent", cfg.Stream.RetryCapExponent, 0, 16)
	v.MinDuration("stream.staleAfter", cfg.Stream.StaleAfter, 100*time.Millisecond)
	v.MinDuration("stream.healthInterval", cfg.Stream.HealthInterval, 10*time.Millisecond)
	if cfg.Stream.HealthInterval > cfg.Stream.StaleAfter {
		v.AddError("stream.healthInterval", "must not exceed stream.staleAfter", cfg.Stream.HealthInterval)
	}
	v.MinDuration("stream.requestTimeout", cfg.Stream.RequestTimeout, 100*time.Millisecond)
	v.NonNegative("stream.segmentRetries", cfg.Stream.SegmentRetries)
	if cfg.Stream.MaxRequestsPerSecond < 0 {
		v.AddError("stream.maxRequestsPerSecond", "cannot be negative", cfg.Stream.MaxRequestsPerSecond)
	}

	v.URL("backend.url", cfg.Backend.URL, []string{"http", "https"})
	v.MinDuration("backend.timeout", cfg.Backend.Timeout, time.Second)
	v.Positive("backend.historyLimit", cfg.Backend.HistoryLimit)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimit", cfg.API.RateLimit)

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil || cfg.Log.Level == "" {
		v.AddError("log.level", "invalid log level (must be: debug, info, warn, error)", cfg.Log.Level)
	}
	v.NonNegative("log.maxAgeDays", cfg.Log.MaxAgeDays)

	if cfg.Redis.Addr != "" {
		v.NotEmpty("redis.channel", cfg.Redis.Channel)
		v.MinDuration("redis.ttl", cfg.Redis.TTL, time.Second)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
