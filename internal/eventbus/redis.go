/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig contains Redis pub/sub configuration.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string // events publish to <prefix>.<event_type>

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "dawnchorus.events",
		DialTimeout:   5 * time.Second,
		WriteTimeout:  3 * time.Second,
	}
}

// redisPublisher adapts a Redis client to the forwarder's publisher.
type redisPublisher struct {
	client  *redis.Client
	timeout time.Duration
}

func (p *redisPublisher) Publish(channel string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.client.Publish(ctx, channel, data).Err()
}

// NewRedisForwarder connects to Redis and returns a forwarder that publishes
// every bus event with PUBLISH. Message bodies match the NATS forwarder.
func NewRedisForwarder(cfg RedisConfig, bus *events.Bus, logger zerolog.Logger) (*Forwarder, error) {
	logger = logger.With().Str("component", "eventbus").Str("transport", "redis").Logger()
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	logger.Info().Str("addr", cfg.Addr).Str("channel_prefix", cfg.ChannelPrefix).Msg("Redis event forwarding enabled")

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultRedisConfig().WriteTimeout
	}
	f := newForwarder(bus, &redisPublisher{client: client, timeout: timeout}, cfg.ChannelPrefix, logger)
	f.close = func() { _ = client.Close() }
	return f, nil
}
