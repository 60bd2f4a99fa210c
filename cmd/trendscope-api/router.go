package main

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/trendscope/cmd/trendscope-api/handlers"
	"github.com/spherical-ai/trendscope/cmd/trendscope-api/middleware"
	"github.com/spherical-ai/trendscope/internal/api/rpc"
	"github.com/spherical-ai/trendscope/internal/observability"
)

// Dependencies are the services behind the routes. Videos is nil when the
// semantic agent is disabled.
type Dependencies struct {
	Answerer rpc.Answerer
	System   handlers.SystemReporter
	Videos   handlers.VideoSearcher
	Metrics  *observability.Metrics
	Summary  map[string]interface{}
}

// AppConfig holds HTTP-level settings.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 130 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, deps Dependencies, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	queryHandler := handlers.NewQueryHandler(logger, deps.Answerer)
	systemHandler := handlers.NewSystemHandler(logger, deps.System, deps.Summary)
	videoHandler := handlers.NewVideoHandler(logger, deps.Videos)

	r.Post("/query", queryHandler.Query)

	r.Get("/health", systemHandler.Health)
	r.Get("/examples", systemHandler.Examples)
	r.Get("/system/info", systemHandler.Info)

	r.Get("/stats", videoHandler.Stats)
	r.Get("/videos/{videoId}/similar", videoHandler.Similar)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	var stats rpc.StatsSource
	if deps.Videos != nil {
		stats = deps.Videos
	}
	_, rpcHandler := rpc.NewHandler(
		rpc.NewQueryService(logger, deps.Answerer, stats),
		connect.WithInterceptors(rpc.LoggingInterceptor(logger)),
	)
	r.Mount("/rpc", http.StripPrefix("/rpc", rpcHandler))

	return r
}
