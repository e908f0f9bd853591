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
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/friendsincode/dawnchorus/internal/apperr"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/rs/zerolog"
)

const (
	mpvStartTimeout   = 5 * time.Second
	mpvCommandTimeout = 5 * time.Second
	mpvStopTimeout    = 5 * time.Second
)

// MPVConfig locates the mpv binary and its IPC socket.
type MPVConfig struct {
	Bin    string
	Socket string
}

// MPV plays audio through an idle mpv process controlled over its JSON IPC
// socket. The process is started lazily on first use and restarted if it
// has exited.
type MPV struct {
	cfg    MPVConfig
	logger zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{} // closed when the process has exited
	conn      net.Conn
	reader    *bufio.Reader
	requestID int64
}

// NewMPV creates an mpv-backed device.
func NewMPV(cfg MPVConfig, logger zerolog.Logger) *MPV {
	if cfg.Bin == "" {
		cfg.Bin = "mpv"
	}
	return &MPV{cfg: cfg, logger: logger.With().Str("component", "audio").Str("backend", "mpv").Logger()}
}

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type ipcResponse struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID *int64          `json:"request_id"`
	Event     string          `json:"event"`

	// end-file event fields
	Reason    string `json:"reason"`
	FileError string `json:"file_error"`
	EntryID   int64  `json:"playlist_entry_id"`
}

// ensureRunning starts mpv and connects to its socket. Caller holds m.mu.
func (m *MPV) ensureRunning(ctx context.Context) error {
	if m.cmd != nil && m.done != nil {
		select {
		case <-m.done:
			m.logger.Warn().Msg("mpv exited, restarting")
			m.resetLocked()
		default:
			if m.conn != nil {
				return nil
			}
			conn, err := m.dial(ctx)
			if err == nil {
				m.conn = conn
				m.reader = bufio.NewReader(conn)
				return nil
			}
			m.logger.Warn().Err(err).Msg("mpv IPC socket lost, restarting process")
			m.killLocked()
			<-m.done
		}
	}

	_ = os.Remove(m.cfg.Socket)

	// The process outlives the request that started it.
	cmd := exec.Command(m.cfg.Bin,
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--keep-open=no",
		"--input-ipc-server="+m.cfg.Socket,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.cfg.Bin, err)
	}

	m.cmd = cmd
	m.done = make(chan struct{})
	go func(done chan struct{}, c *exec.Cmd) {
		err := c.Wait()
		close(done)
		if err != nil {
			m.logger.Debug().Err(err).Msg("mpv exited")
		} else {
			m.logger.Info().Msg("mpv stopped")
		}
	}(m.done, cmd)

	conn, err := m.dial(ctx)
	if err != nil {
		m.killLocked()
		return err
	}
	m.conn = conn
	m.reader = bufio.NewReader(conn)
	m.logger.Info().Str("socket", m.cfg.Socket).Int("pid", cmd.Process.Pid).Msg("mpv started")
	return nil
}

func (m *MPV) dial(ctx context.Context) (net.Conn, error) {
	deadline := time.Now().Add(mpvStartTimeout)
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "unix", m.cfg.Socket)
		if err == nil {
			return conn, nil
		}
		select {
		case <-m.done:
			return nil, errors.New("mpv exited before opening its IPC socket")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("connect to mpv socket %s: %w", m.cfg.Socket, err)
		}
	}
}

// command sends one IPC command and waits for its reply, skipping events.
func (m *MPV) command(ctx context.Context, op string, args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.commandLocked(ctx, args...)
	if err != nil {
		telemetry.DeviceErrorsTotal.WithLabelValues(op).Inc()
		return nil, apperr.Device(op, err)
	}
	return data, nil
}

func (m *MPV) commandLocked(ctx context.Context, args ...any) (json.RawMessage, error) {
	if err := m.ensureRunning(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(mpvCommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = m.conn.SetDeadline(deadline)

	m.requestID++
	id := m.requestID
	payload, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	if _, err := m.conn.Write(append(payload, '\n')); err != nil {
		m.resetLocked()
		return nil, fmt.Errorf("write ipc command: %w", err)
	}

	for {
		resp, err := m.readLocked()
		if err != nil {
			return nil, fmt.Errorf("read ipc reply: %w", err)
		}
		if resp.Event != "" || resp.RequestID == nil || *resp.RequestID != id {
			continue
		}
		if resp.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], resp.Error)
		}
		return resp.Data, nil
	}
}

// readLocked returns the next well-formed IPC line. Caller holds m.mu.
func (m *MPV) readLocked() (ipcResponse, error) {
	for {
		line, err := m.reader.ReadBytes('\n')
		if err != nil {
			m.resetLocked()
			return ipcResponse{}, err
		}
		var resp ipcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			m.logger.Debug().Err(err).Bytes("line", line).Msg("ignoring malformed ipc line")
			continue
		}
		return resp, nil
	}
}

// loadLocked replaces the current file with path and waits until mpv has
// opened it. loadfile is acknowledged as soon as the file is queued, so a
// missing or undecodable file is only reported by a later end-file event.
func (m *MPV) loadLocked(ctx context.Context, path string) error {
	data, err := m.commandLocked(ctx, "loadfile", path, "replace")
	if err != nil {
		return err
	}
	// mpv >= 0.38 names the queued entry; older versions reply with null.
	var queued struct {
		EntryID int64 `json:"playlist_entry_id"`
	}
	_ = json.Unmarshal(data, &queued)

	for {
		resp, err := m.readLocked()
		if err != nil {
			return fmt.Errorf("wait for %s to load: %w", path, err)
		}
		switch resp.Event {
		case "file-loaded":
			return nil
		case "end-file":
			if resp.Reason != "error" {
				continue
			}
			if queued.EntryID > 0 && resp.EntryID > 0 && resp.EntryID != queued.EntryID {
				continue
			}
			reason := resp.FileError
			if reason == "" {
				reason = "unknown error"
			}
			return fmt.Errorf("open %s: %s", path, reason)
		}
	}
}

// resetLocked drops the IPC connection so the next command reconnects.
func (m *MPV) resetLocked() {
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = nil
	m.reader = nil
}

func (m *MPV) killLocked() {
	m.resetLocked()
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
}

func (m *MPV) Play(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.loadLocked(ctx, path)
	if err == nil {
		_, err = m.commandLocked(ctx, "set_property", "pause", false)
	}
	if err != nil {
		telemetry.DeviceErrorsTotal.WithLabelValues("play").Inc()
		return apperr.Device("play", err)
	}
	return nil
}

func (m *MPV) Pause(ctx context.Context) error {
	_, err := m.command(ctx, "pause", "set_property", "pause", true)
	return err
}

func (m *MPV) Resume(ctx context.Context) error {
	_, err := m.command(ctx, "resume", "set_property", "pause", false)
	return err
}

func (m *MPV) Stop(ctx context.Context) error {
	_, err := m.command(ctx, "stop", "stop")
	return err
}

func (m *MPV) SetVolume(ctx context.Context, level float32) error {
	// mpv volume is a percentage.
	_, err := m.command(ctx, "set_volume", "set_property", "volume", float64(clampLevel(level))*100)
	return err
}

func (m *MPV) IsPlaying(ctx context.Context) (bool, error) {
	idle, err := m.command(ctx, "is_playing", "get_property", "idle-active")
	if err != nil {
		return false, err
	}
	paused, err := m.command(ctx, "is_playing", "get_property", "pause")
	if err != nil {
		return false, err
	}
	var isIdle, isPaused bool
	_ = json.Unmarshal(idle, &isIdle)
	_ = json.Unmarshal(paused, &isPaused)
	return !isIdle && !isPaused, nil
}

// Close asks mpv to quit and waits for it, killing it after a timeout.
func (m *MPV) Close() error {
	m.mu.Lock()
	cmd := m.cmd
	done := m.done
	if m.conn != nil {
		_ = m.conn.SetDeadline(time.Now().Add(time.Second))
		_, _ = m.conn.Write([]byte(`{"command":["quit"]}` + "\n"))
	}
	m.resetLocked()
	m.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	select {
	case <-done:
	case <-time.After(mpvStopTimeout):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
	_ = os.Remove(m.cfg.Socket)
	return nil
}
