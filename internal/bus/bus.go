// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus publishes stream session transitions to Redis so other
// processes can follow the session without polling the HTTP API.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/remoto/internal/log"
	"github.com/ManuGH/remoto/internal/metrics"
	"github.com/ManuGH/remoto/internal/stream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultChannel carries one JSON transition per message.
	DefaultChannel = "remoto:stream:status"
	// LatestKey holds the most recent snapshot.
	LatestKey = "remoto:stream:latest"

	defaultTTL = time.Hour
)

// ErrNoSnapshot is returned by Latest when nothing has been published yet or the key expired.
var ErrNoSnapshot = errors.New("bus: no snapshot published")

// Config holds Redis connection settings.
type Config struct {
	Addr     string // host:port
	Password string
	DB       int
	Channel  string
	TTL      time.Duration // lifetime of LatestKey
}

// Publisher writes transitions to a Redis channel and keeps the latest snapshot under LatestKey.
type Publisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	logger  zerolog.Logger
}

// New connects to Redis and verifies the connection with PING.
func New(cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	p := NewWithClient(client, cfg)
	p.logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("channel", p.channel).
		Msg("connected to Redis status bus")
	return p, nil
}

// NewWithClient wraps an existing client. The publisher takes ownership of it.
func NewWithClient(client *redis.Client, cfg Config) *Publisher {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Publisher{
		client:  client,
		channel: channel,
		ttl:     ttl,
		logger:  xglog.WithComponent("bus"),
	}
}

// Channel returns the pub/sub channel name.
func (p *Publisher) Channel() string { return p.channel }

// Publish sends t on the channel and stores its snapshot under LatestKey in one round trip.
func (p *Publisher) Publish(ctx context.Context, t stream.Transition) error {
	msg, err := json.Marshal(t)
	if err != nil {
		metrics.IncBusDropReason(p.channel, "marshal")
		return fmt.Errorf("marshal transition: %w", err)
	}
	snap, err := json.Marshal(t.Snapshot)
	if err != nil {
		metrics.IncBusDropReason(p.channel, "marshal")
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, msg)
		pipe.Set(ctx, LatestKey, snap, p.ttl)
		return nil
	})
	if err != nil {
		metrics.IncBusDropReason(p.channel, "redis")
		p.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "bus.publish_failed").
			Str(xglog.FieldSessionID, t.Snapshot.SessionID).
			Msg("failed to publish transition")
		return fmt.Errorf("publish transition: %w", err)
	}
	metrics.IncBusPublish(p.channel)
	return nil
}

// Latest returns the most recently published snapshot.
func (p *Publisher) Latest(ctx context.Context) (stream.Snapshot, error) {
	var snap stream.Snapshot
	data, err := p.client.Get(ctx, LatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, ErrNoSnapshot
	}
	if err != nil {
		return snap, fmt.Errorf("get latest snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode latest snapshot: %w", err)
	}
	return snap, nil
}

// Subscribe streams transitions from the channel until ctx is done.
// Malformed messages are logged and skipped. The returned channel is closed on exit.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan stream.Transition, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}

	out := make(chan stream.Transition)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var t stream.Transition
				if err := json.Unmarshal([]byte(m.Payload), &t); err != nil {
					p.logger.Warn().
						Err(err).
						Str(xglog.FieldEvent, "bus.bad_message").
						Msg("skipping malformed transition")
					continue
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks that Redis is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
