/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/dawnchorus/internal/config"
	"github.com/friendsincode/dawnchorus/internal/logbuffer"
	"github.com/friendsincode/dawnchorus/internal/logging"
	"github.com/friendsincode/dawnchorus/internal/server"
	"github.com/friendsincode/dawnchorus/internal/telemetry"
	"github.com/friendsincode/dawnchorus/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "dawnchorus",
	Short:         "Dawn Chorus - ambient audio alarms",
	Long:          "Dawn Chorus plays playlists on the local audio output at scheduled times, with fade-in and per-day repeat rules.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and HTTP API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	return loadConfigWithWriter(nil)
}

func loadConfigWithWriter(capture *logbuffer.Writer) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if capture != nil {
		logger = logging.SetupWithWriter(cfg.Environment, capture)
	} else {
		logger = logging.Setup(cfg.Environment)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logBuf := logbuffer.New(logbuffer.DefaultCapacity)
	if err := loadConfigWithWriter(logbuffer.NewWriter(logBuf, nil)); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Dawn Chorus starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "dawnchorus",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		logger.Info().Msg("shutting down gracefully...")
	case runErr = <-serveErr:
		logger.Error().Err(runErr).Msg("http server error")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Dawn Chorus stopped")
	return runErr
}
