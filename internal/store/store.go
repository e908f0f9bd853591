/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the persisted state shared by the scheduler, the playback
// orchestrator and the API. Every method holds the store lock for exactly one
// read or write and never across a device call or a sleep.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Store wraps the gorm handle with a process-wide lock.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store over an already migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Store("ping", err)
	}
	return apperr.Store("ping", sqlDB.PingContext(ctx))
}

func (s *Store) withLock(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db.WithContext(ctx))
}

func (s *Store) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Transaction(fn)
}

// notFoundOr maps gorm's missing-row error to a NotFoundError.
func notFoundOr(op, entity string, id int64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Store(op, err)
}

// LocalMidnight returns the start of the local calendar day containing t.
func LocalMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
