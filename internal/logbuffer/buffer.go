/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so the API can
// show what the scheduler and player did without shell access to the host.
package logbuffer

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 5000

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// TaskID returns the task_id field of the entry, if it has one.
func (e LogEntry) TaskID() (int64, bool) {
	switch v := e.Fields["task_id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a log buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest one when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// GetAll returns all log entries in chronological order.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, 0, b.count)
	b.each(func(e LogEntry) { result = append(result, e) })
	return result
}

// each visits entries oldest first. Callers hold the lock.
func (b *Buffer) each(fn func(LogEntry)) {
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		fn(b.entries[(start+i)%b.capacity])
	}
}

// QueryParams filters a Query. Zero values match everything.
type QueryParams struct {
	Level      string
	Component  string
	TaskID     int64
	RunID      string
	Search     string // case-insensitive, matched against message and string fields
	Since      time.Time
	Limit      int
	Descending bool // newest first
}

func (p QueryParams) matches(e LogEntry) bool {
	if p.Level != "" && e.Level != p.Level {
		return false
	}
	if p.Component != "" && e.Component != p.Component {
		return false
	}
	if p.TaskID != 0 {
		if id, ok := e.TaskID(); !ok || id != p.TaskID {
			return false
		}
	}
	if p.RunID != "" {
		if run, _ := e.Fields["run_id"].(string); run != p.RunID {
			return false
		}
	}
	if !p.Since.IsZero() && e.Timestamp.Before(p.Since) {
		return false
	}
	if p.Search == "" {
		return true
	}

	needle := strings.ToLower(p.Search)
	if strings.Contains(strings.ToLower(e.Message), needle) || strings.Contains(strings.ToLower(e.Component), needle) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Query returns log entries matching the filter criteria.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	all := b.GetAll()

	filtered := make([]LogEntry, 0, len(all))
	for _, entry := range all {
		if params.matches(entry) {
			filtered = append(filtered, entry)
		}
	}

	if params.Descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[:params.Limit]
	}
	return filtered
}

// Stats summarises the buffer contents.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	Components []string       `json:"components"`
}

// Stats returns buffer statistics.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{Capacity: b.capacity, Count: b.count, LevelCount: make(map[string]int), Components: []string{}}
	seen := make(map[string]bool)
	b.each(func(e LogEntry) {
		stats.LevelCount[e.Level]++
		if e.Component != "" && !seen[e.Component] {
			seen[e.Component] = true
			stats.Components = append(stats.Components, e.Component)
		}
	})
	return stats
}

// Writer wraps the buffer to implement io.Writer for zerolog.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a writer that captures JSON log lines into buffer and
// passes every line on to fallback when it is not nil.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		w.buffer.Add(parseEntry(raw))
	}

	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func parseEntry(raw map[string]any) LogEntry {
	entry := LogEntry{Timestamp: time.Now(), Fields: make(map[string]any)}

	if lvl, ok := raw["level"].(string); ok {
		entry.Level = lvl
		delete(raw, "level")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	if comp, ok := raw["component"].(string); ok {
		entry.Component = comp
		delete(raw, "component")
	}
	// zerolog writes either unix seconds or RFC3339 depending on TimeFieldFormat.
	switch ts := raw["time"].(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	delete(raw, "time")

	for k, v := range raw {
		entry.Fields[k] = v
	}
	return entry
}
