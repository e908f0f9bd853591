/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dawnchorus/internal/api"
	"github.com/friendsincode/dawnchorus/internal/audio"
	"github.com/friendsincode/dawnchorus/internal/cache"
	"github.com/friendsincode/dawnchorus/internal/config"
	"github.com/friendsincode/dawnchorus/internal/conflict"
	"github.com/friendsincode/dawnchorus/internal/db"
	"github.com/friendsincode/dawnchorus/internal/eventbus"
	"github.com/friendsincode/dawnchorus/internal/events"
	"github.com/friendsincode/dawnchorus/internal/library"
	"github.com/friendsincode/dawnchorus/internal/logbuffer"
	"github.com/friendsincode/dawnchorus/internal/playout"
	"github.com/friendsincode/dawnchorus/internal/scheduler"
	"github.com/friendsincode/dawnchorus/internal/store"
	"github.com/friendsincode/dawnchorus/internal/tasks"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/friendsincode/dawnchorus/internal/version"
)

// Server wires the store, scheduler, player and HTTP API together.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	store      *store.Store
	cache      *cache.Cache
	durations  *cache.PlaylistDurations
	logBuffer  *logbuffer.Buffer
	api        *api.API
	scheduler  *scheduler.Service
	player     *playout.Orchestrator
	forwarders []*eventbus.Forwarder
	bus        *events.Bus

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and starts its background workers. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("dawnchorus-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	s.db = database
	s.store = store.New(database, s.logger)

	// A started row without a running process can only come from a crash or kill.
	n, err := s.store.FailInterrupted(context.Background())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn().Int64("rows", n).Msg("marked executions interrupted by the previous shutdown as failed")
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	s.cache = cache.New(cacheCfg, s.logger)
	s.DeferClose(s.cache.Close)
	s.durations = cache.NewPlaylistDurations(s.cache, s.store)

	device, err := audio.New(s.cfg, s.logger)
	if err != nil {
		return err
	}
	controller := audio.NewController(device, s.cfg.DefaultVolume, s.bus, s.logger)
	s.DeferClose(controller.Close)

	s.player = playout.New(s.store, controller, s.bus, playout.WallClock(), s.cfg.DefaultVolume, s.logger)
	s.DeferClose(func() error {
		s.player.Close()
		return nil
	})

	detector := conflict.NewDetector(s.store, s.durations, s.logger)
	taskSvc := tasks.NewService(s.store, detector, s.bus, s.cfg.DefaultVolume, s.logger)
	librarySvc := library.NewService(s.store, s.bus, s.logger)

	s.scheduler = scheduler.New(s.store, s.player, s.bus, s.cfg.PollInterval, s.logger)

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.SubjectPrefix = s.cfg.NATSSubject
		forwarder, err := eventbus.NewNATSForwarder(natsCfg, s.bus, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("NATS unavailable, continuing without event forwarding")
		} else {
			s.forwarders = append(s.forwarders, forwarder)
			s.DeferClose(forwarder.Close)
		}
	}
	if s.cfg.RedisEvents {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		forwarder, err := eventbus.NewRedisForwarder(redisCfg, s.bus, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Redis unavailable, continuing without Redis event forwarding")
		} else {
			s.forwarders = append(s.forwarders, forwarder)
			s.DeferClose(forwarder.Close)
		}
	}

	s.api = api.New(s.store, taskSvc, librarySvc, s.player, s.bus, []byte(s.cfg.JWTSigningKey), s.logBuffer, s.logger)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background workers and releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.goWorker(func() {
		if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduler loop exited")
		}
	})

	s.goWorker(func() { s.durations.Watch(ctx, s.bus) })

	for _, f := range s.forwarders {
		f := f
		s.goWorker(func() { f.Run(ctx) })
	}

	s.goWorker(func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	})
}

func (s *Server) goWorker(fn func()) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		fn()
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := s.store.Ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"status":%q,"version":%q}`, status, version.Version)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
