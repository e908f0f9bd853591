/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// AudioBackend selects the playback device implementation.
type AudioBackend string

const (
	AudioMPV  AudioBackend = "mpv"
	AudioNull AudioBackend = "null"
)

// MaxPollInterval is the exclusive upper bound for the scheduler poll interval.
// The firing window covers the current and the previous minute, so a poll
// interval of a minute or more could step over a task's window entirely.
const MaxPollInterval = 60 * time.Second

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	PollInterval  time.Duration
	JWTSigningKey string // Empty disables API authentication

	// Playback device
	AudioBackend  AudioBackend
	MPVBin        string
	MPVSocket     string
	DefaultVolume int // Volume used for manual playback (0-100)

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Optional integrations
	RedisAddr     string // Empty disables the duration cache
	RedisPassword string
	RedisDB       int
	RedisEvents   bool   // Also publish bus events on RedisAddr
	NATSURL       string // Empty disables event forwarding
	NATSSubject   string
}

// Load reads environment variables, applies defaults, and validates the result.
// A .env file in the working directory is applied first when present; values
// already set in the process environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"DAWN_ENV", "DAWNCHORUS_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"DAWN_HTTP_BIND", "DAWNCHORUS_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:      getEnvIntAny([]string{"DAWN_HTTP_PORT", "DAWNCHORUS_HTTP_PORT"}, 8470),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"DAWN_DB_BACKEND", "DAWNCHORUS_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"DAWN_DB_DSN", "DAWNCHORUS_DB_DSN"}, "dawnchorus.db"),
		PollInterval:  time.Duration(getEnvIntAny([]string{"DAWN_POLL_INTERVAL_SECONDS", "DAWNCHORUS_POLL_INTERVAL_SECONDS"}, 10)) * time.Second,
		JWTSigningKey: getEnvAny([]string{"DAWN_JWT_SIGNING_KEY", "DAWNCHORUS_JWT_SIGNING_KEY"}, ""),

		AudioBackend:  AudioBackend(getEnvAny([]string{"DAWN_AUDIO_BACKEND", "DAWNCHORUS_AUDIO_BACKEND"}, string(AudioMPV))),
		MPVBin:        getEnvAny([]string{"DAWN_MPV_BIN", "DAWNCHORUS_MPV_BIN"}, "mpv"),
		MPVSocket:     getEnvAny([]string{"DAWN_MPV_SOCKET", "DAWNCHORUS_MPV_SOCKET"}, filepath.Join(os.TempDir(), "dawnchorus-mpv.sock")),
		DefaultVolume: getEnvIntAny([]string{"DAWN_DEFAULT_VOLUME", "DAWNCHORUS_DEFAULT_VOLUME"}, 50),

		TracingEnabled:    getEnvBoolAny([]string{"DAWN_TRACING_ENABLED", "DAWNCHORUS_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"DAWN_OTLP_ENDPOINT", "DAWNCHORUS_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"DAWN_TRACING_SAMPLE_RATE", "DAWNCHORUS_TRACING_SAMPLE_RATE"}, 1.0),

		RedisAddr:     getEnvAny([]string{"DAWN_REDIS_ADDR", "DAWNCHORUS_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"DAWN_REDIS_PASSWORD", "DAWNCHORUS_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"DAWN_REDIS_DB", "DAWNCHORUS_REDIS_DB"}, 0),
		RedisEvents:   getEnvBoolAny([]string{"DAWN_REDIS_EVENTS", "DAWNCHORUS_REDIS_EVENTS"}, false),
		NATSURL:       getEnvAny([]string{"DAWN_NATS_URL", "DAWNCHORUS_NATS_URL"}, ""),
		NATSSubject:   getEnvAny([]string{"DAWN_NATS_SUBJECT", "DAWNCHORUS_NATS_SUBJECT"}, "dawnchorus.events"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DAWN_DB_DSN must be provided")
	}
	if c.PollInterval <= 0 || c.PollInterval >= MaxPollInterval {
		return fmt.Errorf("poll interval must be between 1s and 59s, got %s", c.PollInterval)
	}
	if c.AudioBackend != AudioMPV && c.AudioBackend != AudioNull {
		return fmt.Errorf("unsupported audio backend %q", c.AudioBackend)
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		return fmt.Errorf("default volume must be between 0 and 100, got %d", c.DefaultVolume)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be between 0 and 1, got %v", c.TracingSampleRate)
	}
	if c.RedisEvents && c.RedisAddr == "" {
		return fmt.Errorf("DAWN_REDIS_EVENTS requires DAWN_REDIS_ADDR")
	}
	if strings.EqualFold(c.Environment, "production") && c.HTTPBind != "127.0.0.1" && c.JWTSigningKey == "" {
		return fmt.Errorf("DAWN_JWT_SIGNING_KEY must be set when listening on %s in production", c.HTTPBind)
	}
	return nil
}

// ListenAddr returns the HTTP bind address in host:port form.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
