/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/logbuffer"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
)

const eventPingInterval = 15 * time.Second

type busEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams bus events over a websocket. ?types= narrows the
// stream to a comma separated list of event types.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventTypes, ok := parseEventTypes(r.URL.Query().Get("types"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown_event_type")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.EventStreamClients.Inc()
	defer telemetry.EventStreamClients.Dec()

	// Clients only listen; CloseRead handles their control frames and cancels
	// ctx when they go away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	merged := make(chan busEvent, 64)
	for _, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, sub)
		go func(et events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- busEvent{Type: et, Payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(eventType, sub)
	}

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			data, err := json.Marshal(ev)
			if err != nil {
				a.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("encode event failed")
				continue
			}
			if err := conn.Write(ctx, ws.MessageText, data); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// parseEventTypes splits a comma separated list. An empty list selects every
// event type; an unknown name is rejected.
func parseEventTypes(raw string) ([]events.EventType, bool) {
	if strings.TrimSpace(raw) == "" {
		return events.AllTypes, true
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		et := events.EventType(part)
		if !slices.Contains(events.AllTypes, et) {
			return nil, false
		}
		if !slices.Contains(out, et) {
			out = append(out, et)
		}
	}
	return out, len(out) > 0
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		RunID:      q.Get("run_id"),
		Search:     q.Get("search"),
		Limit:      queryLimit(r, 200, 5000),
		Descending: true,
	}
	if id, err := strconv.ParseInt(q.Get("task_id"), 10, 64); err == nil {
		params.TaskID = id
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}

	writeJSON(w, http.StatusOK, a.logBuffer.Query(params))
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}
