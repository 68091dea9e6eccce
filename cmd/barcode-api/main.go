// Package main provides the barcode upload service entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical/barcode-extractor/cmd/barcode-api/handlers"
	"github.com/spherical/barcode-extractor/internal/app"
	"github.com/spherical/barcode-extractor/internal/config"
	"github.com/spherical/barcode-extractor/internal/observability"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.LogConfig()
	if os.Getenv("LOG_FORMAT") == "" {
		logCfg.Format = "json"
	}
	logger := observability.NewLogger(logCfg)

	if err := app.EnsureDirs(cfg.Paths.UploadDir, cfg.Paths.ScratchDir, cfg.Paths.OutputDir); err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare working directories")
	}

	for _, tool := range app.CheckTools(cfg) {
		if tool.Err != nil {
			logger.Warn().Err(tool.Err).Str("tool", tool.Name).Msg("External program not found, uploads will fail")
		}
	}

	components, err := app.Build(cfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	deps := Deps{
		Pipeline: components.Service,
		Upload: handlers.UploadConfig{
			UploadDir:         cfg.Paths.UploadDir,
			OutputDir:         cfg.Paths.OutputDir,
			MaxUploadBytes:    cfg.Server.MaxUploadBytes,
			MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		},
	}

	store := app.OpenHistory(context.Background(), cfg, logger)
	if store != nil {
		defer store.Close()
		deps.Recorder = store
		deps.Runs = store
	}

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("backend", cfg.Tools.Backend).
		Bool("history", store != nil).
		Msg("Starting barcode upload service")

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msgf("HTTP server listening, open http://localhost:%d in a browser", cfg.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
