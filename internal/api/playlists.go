/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/dawnchorus/internal/models"
)

type playlistRequest struct {
	Name string `json:"name"`
}

type playlistItemRequest struct {
	AudioID int64 `json:"audio_id"`
}

type audioRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Duration int    `json:"duration"`
}

type playRequest struct {
	AutoAdvance *bool `json:"auto_advance"`
}

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.ListPlaylists(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.PlaylistSummary{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handlePlaylistsCreate(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pl, err := a.library.CreatePlaylist(r.Context(), req.Name)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pl)
}

func (a *API) handlePlaylistsDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "playlistID")
	if !ok {
		return
	}
	if err := a.library.DeletePlaylist(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "playlistID")
	if !ok {
		return
	}
	entries, err := a.store.PlaylistEntries(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handlePlaylistItemAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "playlistID")
	if !ok {
		return
	}
	var req playlistItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := a.library.AddItem(r.Context(), id, req.AudioID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handlePlaylistItemRemove(w http.ResponseWriter, r *http.Request) {
	playlistID, ok := parseID(w, r, "playlistID")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID")
	if !ok {
		return
	}
	if err := a.library.RemoveItem(r.Context(), playlistID, itemID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePlaylistTasks lists the enabled tasks that would play the playlist,
// so a client can warn before deleting it.
func (a *API) handlePlaylistTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "playlistID")
	if !ok {
		return
	}
	if _, err := a.store.GetPlaylist(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	rows, err := a.store.TasksUsingPlaylist(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.ScheduledTask{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handlePlaylistPlay(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "playlistID")
	if !ok {
		return
	}
	req := playRequest{}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	autoAdvance := true
	if req.AutoAdvance != nil {
		autoAdvance = *req.AutoAdvance
	}

	a.logger.Info().Int64("playlist_id", id).Bool("auto_advance", autoAdvance).Str("client", clientName(r)).Msg("manual playback requested")
	state, err := a.player.PlayNow(r.Context(), id, autoAdvance)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

func (a *API) handleAudioRegister(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audio, err := a.library.RegisterAudio(r.Context(), req.Name, req.Path, req.Duration)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, audio)
}

func (a *API) handleAudioGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "audioID")
	if !ok {
		return
	}
	audio, err := a.store.GetAudio(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audio)
}
