/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"net/http"

	"github.com/friendsincode/dawnchorus/internal/conflict"
	"github.com/friendsincode/dawnchorus/internal/models"
	"github.com/friendsincode/dawnchorus/internal/tasks"
)

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type conflictRequest struct {
	tasks.Input
	ExcludingID *int64 `json:"excluding_id"`
}

func (a *API) handleTasksList(w http.ResponseWriter, r *http.Request) {
	rows, err := a.tasks.List(r.Context(), a.now())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.TaskListing{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleTasksGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}
	task, err := a.tasks.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleTasksCreate(w http.ResponseWriter, r *http.Request) {
	var in tasks.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := a.tasks.Create(r.Context(), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) handleTasksUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}
	var in tasks.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := a.tasks.Update(r.Context(), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleTasksDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}
	if err := a.tasks.Delete(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTasksSetEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}
	var req enabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled_required")
		return
	}
	if err := a.tasks.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_enabled": *req.Enabled})
}

func (a *API) handleTasksConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	found, err := a.tasks.CheckConflicts(r.Context(), req.Input, req.ExcludingID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if found == nil {
		found = []conflict.Conflict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": found})
}

func (a *API) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}
	rows, err := a.tasks.History(r.Context(), id, queryLimit(r, 20, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.ExecutionHistory{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleTasksExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := a.tasks.Export(r.Context(), &buf); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="dawnchorus-tasks.yaml"`)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleTasksImport(w http.ResponseWriter, r *http.Request) {
	res, err := a.tasks.Import(r.Context(), r.Body)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
