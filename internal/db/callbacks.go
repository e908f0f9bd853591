/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"gorm.io/gorm"
)

const startTimeKey = "telemetry:start_time"

type registerFunc func(name string, fn func(*gorm.DB)) error

// RegisterCallbacks registers telemetry callbacks for GORM operations.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		operation string
		before    registerFunc
		after     registerFunc
	}{
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		if err := h.before("telemetry:before_"+h.operation, beforeCallback); err != nil {
			return err
		}
		if err := h.after("telemetry:after_"+h.operation, afterCallback(h.operation)); err != nil {
			return err
		}
	}
	return nil
}

func beforeCallback(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		value, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		start, ok := value.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, table).Inc()
		}
	}
}

// UpdateConnectionMetrics updates connection pool metrics.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
