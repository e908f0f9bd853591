/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/dawnchorus/internal/config"
	"github.com/friendsincode/dawnchorus/internal/logbuffer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:   "test",
		HTTPBind:      "127.0.0.1",
		HTTPPort:      0,
		DBBackend:     config.DatabaseSQLite,
		DBDSN:         filepath.Join(t.TempDir(), "dawnchorus.db"),
		PollInterval:  time.Second,
		AudioBackend:  config.AudioNull,
		DefaultVolume: 50,
	}
}

func TestServerServesAPI(t *testing.T) {
	srv, err := New(testConfig(t), logbuffer.New(10), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/api/v1/tasks", http.StatusOK, "[]"},
		{"/api/v1/playback", http.StatusOK, `"playing":false`},
		{"/metrics", http.StatusOK, "dawnchorus_"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("expected body to contain %q, got %s", tt.body, rec.Body)
			}
		})
	}
}

func TestServerRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.AudioBackend = "alsa"
	if _, err := New(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an unknown audio backend")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q, want DENY", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no HSTS on non-HTTPS request, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q", got)
	}
}
