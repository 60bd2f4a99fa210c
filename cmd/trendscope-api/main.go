// Package main provides the trendscope API server entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical-ai/trendscope/internal/config"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/pkg/engine"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Build(ctx, cfg, engine.Options{Logger: logger})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start engine")
		if domain.IsKind(err, domain.ErrorKindDependencyUnavailable) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	defer eng.Close()

	deps := Dependencies{
		Answerer: eng.Orchestrator,
		System:   eng.Orchestrator,
		Metrics:  eng.Metrics,
		Summary:  cfg.Summary(),
	}
	if eng.Semantic != nil {
		deps.Videos = eng.Semantic
	}

	appCfg := DefaultAppConfig()
	appCfg.RequestTimeout = cfg.Server.WriteTimeout
	appCfg.AllowedOrigins = cfg.Server.AllowedOrigins

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, deps, appCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logger.Info().
		Str("addr", addr).
		Str("llm", cfg.LLM.Provider).
		Str("vector", cfg.Vector.Adapter).
		Msg("Starting trendscope API")

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
