/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP JSON interface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/auth"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/library"
	"github.com/friendsincode/dawnchorus/internal/logbuffer"
	"github.com/friendsincode/dawnchorus/internal/playout"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/tasks"
	"github.com/friendsincode/dawnchorus/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	store     *store.Store
	tasks     *tasks.Service
	library   *library.Service
	player    *playout.Orchestrator
	bus       *events.Bus
	jwtSecret []byte
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates the API router wrapper. logBuf may be nil.
func New(st *store.Store, taskSvc *tasks.Service, lib *library.Service, player *playout.Orchestrator, bus *events.Bus, jwtSecret []byte, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		store:     st,
		tasks:     taskSvc,
		library:   lib,
		player:    player,
		bus:       bus,
		jwtSecret: jwtSecret,
		logBuffer: logBuf,
		logger:    logger.With().Str("component", "api").Logger(),
		now:       time.Now,
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Reads are open to anyone who can reach the listener.
		r.Get("/tasks", a.handleTasksList)
		r.Get("/tasks/export", a.handleTasksExport)
		r.Get("/tasks/{taskID}", a.handleTasksGet)
		r.Get("/tasks/{taskID}/history", a.handleTaskHistory)
		r.Get("/playlists", a.handlePlaylistsList)
		r.Get("/playlists/{playlistID}/items", a.handlePlaylistItems)
		r.Get("/playlists/{playlistID}/tasks", a.handlePlaylistTasks)
		r.Get("/audio/{audioID}", a.handleAudioGet)
		r.Get("/playback", a.handlePlaybackState)
		r.Get("/history/plays", a.handleRecentPlays)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/events", a.handleEvents)
			pr.Get("/logs", a.handleLogs)
			pr.Get("/logs/stats", a.handleLogStats)

			pr.Post("/tasks", a.handleTasksCreate)
			pr.Post("/tasks/conflicts", a.handleTasksConflicts)
			pr.Post("/tasks/import", a.handleTasksImport)
			pr.Put("/tasks/{taskID}", a.handleTasksUpdate)
			pr.Delete("/tasks/{taskID}", a.handleTasksDelete)
			pr.Put("/tasks/{taskID}/enabled", a.handleTasksSetEnabled)

			pr.Post("/audio", a.handleAudioRegister)
			pr.Post("/playlists", a.handlePlaylistsCreate)
			pr.Delete("/playlists/{playlistID}", a.handlePlaylistsDelete)
			pr.Post("/playlists/{playlistID}/items", a.handlePlaylistItemAdd)
			pr.Delete("/playlists/{playlistID}/items/{itemID}", a.handlePlaylistItemRemove)
			pr.Post("/playlists/{playlistID}/play", a.handlePlaylistPlay)

			pr.Post("/playback/pause", a.handlePlaybackPause)
			pr.Post("/playback/resume", a.handlePlaybackResume)
			pr.Post("/playback/stop", a.handlePlaybackStop)
			pr.Post("/playback/next", a.handlePlaybackNext)
			pr.Post("/playback/previous", a.handlePlaybackPrevious)
			pr.Put("/playback/volume", a.handlePlaybackVolume)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Get()})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := apperr.Code(err)

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidSchedule):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrEmptyPlaylist):
		status = http.StatusConflict
	case errors.Is(err, playout.ErrNothingQueued):
		status, code = http.StatusConflict, "nothing_queued"
	case errors.Is(err, apperr.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}

	body := map[string]any{"error": code}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
		body["reason"] = verr.Reason
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}

// queryLimit reads ?limit=, falling back to def and capping at max.
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// clientName is the token holder behind r, or "anonymous" when auth is off.
func clientName(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Name != "" {
		return claims.Name
	}
	return "anonymous"
}
