/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dawnchorus"

// Scheduler metrics
var (
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Number of scheduler poll ticks.",
	})

	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "errors_total",
		Help:      "Scheduler tick errors by stage.",
	}, []string{"stage"})

	SchedulerTasksFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tasks_fired_total",
		Help:      "Scheduled task executions by outcome.",
	}, []string{"outcome"})

	SchedulerTasksSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tasks_skipped_total",
		Help:      "Tasks inside their firing window that were not fired, by reason.",
	}, []string{"reason"})

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Time spent evaluating one scheduler tick.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// Playback metrics
var (
	PlaybackRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "playback",
		Name:      "runs_total",
		Help:      "Playlist playback runs by outcome.",
	}, []string{"outcome"})

	PlaybackTracksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "playback",
		Name:      "tracks_total",
		Help:      "Tracks played to completion.",
	})

	PlaybackFadeStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "playback",
		Name:      "fade_steps_total",
		Help:      "Volume steps applied during fade-in.",
	})

	PlaybackGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "playback",
		Name:      "session_generation",
		Help:      "Current device session generation.",
	})

	PlaybackActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "playback",
		Name:      "active",
		Help:      "1 while the device is playing.",
	})

	DeviceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "errors_total",
		Help:      "Audio device command failures by operation.",
	}, []string{"op"})
)

// API metrics
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests handled.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP requests.",
	})

	EventStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "event_stream_clients",
		Help:      "Connected websocket event stream clients.",
	})
)

// Database and cache metrics
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "Database operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "errors_total",
		Help:      "Database operation failures.",
	}, []string{"operation", "table"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "connections_open",
		Help:      "Open database connections.",
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Duration cache lookups by result.",
	}, []string{"result"})

	EventsForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "forwarded_total",
		Help:      "Events forwarded to NATS by outcome.",
	}, []string{"outcome"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
