/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"

	"github.com/friendsincode/dawnchorus/internal/audio"
	"github.com/friendsincode/dawnchorus/internal/models"
)

type volumeRequest struct {
	Volume *int `json:"volume"`
}

func (a *API) handlePlaybackState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.player.Controller().Snapshot(r.Context()))
}

func (a *API) handlePlaybackPause(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.player.Controller().Pause)
}

func (a *API) handlePlaybackResume(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.player.Controller().Resume)
}

func (a *API) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.player.Controller().Stop)
}

func (a *API) handlePlaybackNext(w http.ResponseWriter, r *http.Request) {
	a.jump(w, r, a.player.Next)
}

func (a *API) handlePlaybackPrevious(w http.ResponseWriter, r *http.Request) {
	a.jump(w, r, a.player.Previous)
}

func (a *API) handlePlaybackVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume_required")
		return
	}
	a.control(w, r, func(ctx context.Context) error {
		return a.player.Controller().SetVolume(ctx, *req.Volume)
	})
}

func (a *API) control(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	a.logger.Debug().Str("path", r.URL.Path).Str("client", clientName(r)).Msg("playback control")
	if err := fn(r.Context()); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.player.Controller().State())
}

func (a *API) jump(w http.ResponseWriter, r *http.Request, fn func(context.Context) (audio.State, error)) {
	state, err := fn(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleRecentPlays(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.RecentPlays(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.PlaybackHistory{}
	}
	writeJSON(w, http.StatusOK, rows)
}
