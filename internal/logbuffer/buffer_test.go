/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBufferWrapsAtCapacity(t *testing.T) {
	b := New(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg, Timestamp: time.Unix(int64(i), 0)})
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("expected oldest entry dropped, got %+v", all)
	}
}

func TestWriterCapturesZerologFields(t *testing.T) {
	b := New(10)
	var out bytes.Buffer
	logger := zerolog.New(NewWriter(b, &out)).With().Timestamp().Logger()

	logger.Info().Str("component", "scheduler").Int64("task_id", 7).Str("run_id", "r-1").Msg("task fired")
	logger.Warn().Str("component", "playout").Msg("track play not recorded")

	if out.Len() == 0 {
		t.Fatal("expected fallback writer to receive output")
	}

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{"all", QueryParams{}, []string{"task fired", "track play not recorded"}},
		{"by level", QueryParams{Level: "warn"}, []string{"track play not recorded"}},
		{"by component", QueryParams{Component: "scheduler"}, []string{"task fired"}},
		{"by task", QueryParams{TaskID: 7}, []string{"task fired"}},
		{"by run", QueryParams{RunID: "r-1"}, []string{"task fired"}},
		{"search is case insensitive", QueryParams{Search: "TRACK"}, []string{"track play not recorded"}},
		{"newest first with limit", QueryParams{Descending: true, Limit: 1}, []string{"track play not recorded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %+v", len(tt.want), got)
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Fatalf("entry %d: expected %q, got %q", i, tt.want[i], got[i].Message)
				}
			}
		})
	}

	stats := b.Stats()
	if stats.Count != 2 || stats.LevelCount["info"] != 1 || len(stats.Components) != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWriterIgnoresNonJSON(t *testing.T) {
	b := New(10)
	w := NewWriter(b, nil)
	if n, err := w.Write([]byte("plain text\n")); err != nil || n != 11 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if len(b.GetAll()) != 0 {
		t.Fatal("expected non-JSON line to be skipped")
	}
}
