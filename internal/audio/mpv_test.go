/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/rs/zerolog"
)

// fakeMPV answers IPC commands on one end of a pipe, emitting an unrelated
// event line before every reply. loadfile is followed by the events mpv
// sends while opening the file.
type fakeMPV struct {
	mu         sync.Mutex
	commands   [][]any
	props      map[string]any
	failOn     string
	unreadable map[string]string // path -> file_error
	priorError bool              // report the replaced entry as failed
	entries    int64
}

func (f *fakeMPV) serve(t *testing.T, conn net.Conn) {
	t.Helper()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		var req ipcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			t.Errorf("bad request %q: %v", line, err)
			return
		}

		f.mu.Lock()
		f.commands = append(f.commands, req.Command)
		name, _ := req.Command[0].(string)
		reply := map[string]any{"request_id": req.RequestID, "error": "success", "data": nil}
		switch {
		case name == f.failOn:
			reply["error"] = "property unavailable"
		case name == "get_property":
			reply["data"] = f.props[req.Command[1].(string)]
		case name == "set_property":
			f.props[req.Command[1].(string)] = req.Command[2]
		}
		var after []map[string]any
		if name == "loadfile" && reply["error"] == "success" {
			after = f.loadEvents(req.Command[1].(string))
			reply["data"] = map[string]any{"playlist_entry_id": f.entries}
		}
		f.mu.Unlock()

		_, _ = fmt.Fprintf(conn, "{\"event\":\"playback-restart\"}\n")
		out, _ := json.Marshal(reply)
		_, _ = conn.Write(append(out, '\n'))
		for _, ev := range after {
			out, _ := json.Marshal(ev)
			_, _ = conn.Write(append(out, '\n'))
		}
	}
}

// loadEvents queues a new entry for path. Caller holds f.mu.
func (f *fakeMPV) loadEvents(path string) []map[string]any {
	f.entries++
	id := f.entries
	var events []map[string]any
	if id > 1 {
		prev := map[string]any{"event": "end-file", "reason": "stop", "playlist_entry_id": id - 1}
		if f.priorError {
			prev["reason"] = "error"
			prev["file_error"] = "earlier failure"
		}
		events = append(events, prev)
	}
	events = append(events, map[string]any{"event": "start-file", "playlist_entry_id": id})
	if reason, bad := f.unreadable[path]; bad {
		return append(events, map[string]any{"event": "end-file", "reason": "error", "file_error": reason, "playlist_entry_id": id})
	}
	return append(events, map[string]any{"event": "file-loaded"})
}

func newPipedMPV(t *testing.T, fake *fakeMPV) *MPV {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	go fake.serve(t, server)

	m := NewMPV(MPVConfig{Socket: "unused"}, zerolog.Nop())
	m.cmd = &exec.Cmd{}
	m.done = make(chan struct{})
	m.conn = client
	m.reader = bufio.NewReader(client)
	return m
}

func TestMPVCommands(t *testing.T) {
	fake := &fakeMPV{props: map[string]any{"idle-active": false, "pause": false}}
	m := newPipedMPV(t, fake)
	ctx := context.Background()

	if err := m.Play(ctx, "/library/birds.mp3"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := m.SetVolume(ctx, 0.4); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	playing, err := m.IsPlaying(ctx)
	if err != nil {
		t.Fatalf("is playing: %v", err)
	}
	if !playing {
		t.Fatal("expected playing state")
	}
	if err := m.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if playing, _ := m.IsPlaying(ctx); playing {
		t.Fatal("expected paused device to report not playing")
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	first := fake.commands[0]
	if first[0] != "loadfile" || first[1] != "/library/birds.mp3" || first[2] != "replace" {
		t.Fatalf("unexpected loadfile command: %v", first)
	}
	vol := fake.props["volume"].(float64)
	if vol < 39.99 || vol > 40.01 {
		t.Fatalf("expected volume 40, got %v", vol)
	}
	last := fake.commands[len(fake.commands)-1]
	if last[0] != "stop" {
		t.Fatalf("expected final stop command, got %v", last)
	}
}

func TestMPVCommandErrorIsDeviceUnavailable(t *testing.T) {
	fake := &fakeMPV{props: map[string]any{}, failOn: "loadfile"}
	m := newPipedMPV(t, fake)

	err := m.Play(context.Background(), "/missing.mp3")
	if !errors.Is(err, apperr.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestMPVPlayReportsOpenFailure(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		priorError bool
		wantErr    bool
	}{
		{"file opens", "/library/birds.mp3", false, false},
		{"file cannot be opened", "/library/missing.mp3", false, true},
		{"failure of replaced entry is ignored", "/library/birds.mp3", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMPV{
				props:      map[string]any{},
				unreadable: map[string]string{"/library/missing.mp3": "loading failed"},
				priorError: tt.priorError,
			}
			m := newPipedMPV(t, fake)
			ctx := context.Background()

			// Load something first so the fake reports on the replaced entry.
			if err := m.Play(ctx, "/library/warmup.mp3"); err != nil {
				t.Fatalf("warmup play: %v", err)
			}
			err := m.Play(ctx, tt.path)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("play: %v", err)
				}
				return
			}
			if !errors.Is(err, apperr.ErrDeviceUnavailable) {
				t.Fatalf("expected device unavailable, got %v", err)
			}
			if !strings.Contains(err.Error(), "loading failed") {
				t.Fatalf("expected mpv's reason in the error, got %v", err)
			}

			// The device stays usable after a failed open.
			if err := m.Stop(ctx); err != nil {
				t.Fatalf("stop after failed open: %v", err)
			}
		})
	}
}

func TestNullDevice(t *testing.T) {
	ctx := context.Background()
	n := NewNull(zerolog.Nop())

	if err := n.Play(ctx, "/a.mp3"); err != nil {
		t.Fatalf("play: %v", err)
	}
	_ = n.SetVolume(ctx, 1.7)
	if n.Volume() != 1 {
		t.Fatalf("expected clamped volume, got %v", n.Volume())
	}
	_ = n.Pause(ctx)
	if playing, _ := n.IsPlaying(ctx); playing {
		t.Fatal("expected paused")
	}
	_ = n.Resume(ctx)
	if playing, _ := n.IsPlaying(ctx); !playing {
		t.Fatal("expected resumed")
	}
	_ = n.Stop(ctx)
	if n.Loaded() != "" {
		t.Fatal("expected stop to unload")
	}
}
