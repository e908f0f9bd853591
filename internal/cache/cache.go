/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for values the conflict
// detector asks for on every keystroke of the task editor.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultPlaylistDurationTTL bounds staleness if an invalidation is missed.
const DefaultPlaylistDurationTTL = 10 * time.Minute

// Key prefixes for Redis cache
const (
	KeyPlaylistDuration = "dawnchorus:cache:playlist_duration:" // + playlist_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PlaylistDurationTTL time.Duration

	// DisableOnError turns the cache off after the first Redis failure.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:           "localhost:6379",
		PlaylistDurationTTL: DefaultPlaylistDurationTTL,
		DisableOnError:      true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.PlaylistDurationTTL <= 0 {
		cfg.PlaylistDurationTTL = DefaultPlaylistDurationTTL
	}
	if cfg.RedisAddr == "" {
		logger.Debug().Msg("no Redis address configured, running without caching")
		return Disabled(logger)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Disabled returns a cache that never stores anything.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{logger: logger, config: DefaultConfig(), disabled: true}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if err := c.delete(ctx, keys...); err != nil {
			return err
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// DurationSource is the uncached playlist duration lookup.
type DurationSource interface {
	PlaylistDurationSeconds(ctx context.Context, playlistID int64) (int, error)
}

// PlaylistDurations caches playlist durations in front of a DurationSource.
type PlaylistDurations struct {
	cache  *Cache
	source DurationSource
}

// NewPlaylistDurations wraps source with the cache.
func NewPlaylistDurations(c *Cache, source DurationSource) *PlaylistDurations {
	return &PlaylistDurations{cache: c, source: source}
}

func playlistDurationKey(playlistID int64) string {
	return KeyPlaylistDuration + strconv.FormatInt(playlistID, 10)
}

// PlaylistDurationSeconds returns the cached total or loads and caches it.
func (p *PlaylistDurations) PlaylistDurationSeconds(ctx context.Context, playlistID int64) (int, error) {
	key := playlistDurationKey(playlistID)

	var seconds int
	if found, _ := p.cache.get(ctx, key, &seconds); found {
		telemetry.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return seconds, nil
	}
	telemetry.CacheRequestsTotal.WithLabelValues("miss").Inc()

	seconds, err := p.source.PlaylistDurationSeconds(ctx, playlistID)
	if err != nil {
		return 0, err
	}
	_ = p.cache.set(ctx, key, seconds, p.cache.config.PlaylistDurationTTL)
	return seconds, nil
}

// Invalidate drops the cached duration of one playlist.
func (p *PlaylistDurations) Invalidate(ctx context.Context, playlistID int64) {
	if err := p.cache.delete(ctx, playlistDurationKey(playlistID)); err != nil {
		p.cache.logger.Debug().Err(err).Int64("playlist_id", playlistID).Msg("invalidate playlist duration failed")
	}
}

// InvalidateAll drops every cached playlist duration.
func (p *PlaylistDurations) InvalidateAll(ctx context.Context) {
	if err := p.cache.deletePattern(ctx, KeyPlaylistDuration+"*"); err != nil {
		p.cache.logger.Debug().Err(err).Msg("invalidate playlist durations failed")
	}
}

// Watch invalidates cached durations as playlists change until ctx is done.
func (p *PlaylistDurations) Watch(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.EventPlaylistChanged)
	defer bus.Unsubscribe(events.EventPlaylistChanged, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if id, ok := payload["playlist_id"].(int64); ok {
				p.Invalidate(ctx, id)
				continue
			}
			p.InvalidateAll(ctx)
		}
	}
}
