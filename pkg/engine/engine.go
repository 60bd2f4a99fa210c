// Package engine assembles a ready-to-serve trendscope orchestrator from
// configuration and exposes a client for remote instances.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/spherical-ai/trendscope/internal/agents/analytical"
	"github.com/spherical-ai/trendscope/internal/agents/semantic"
	"github.com/spherical-ai/trendscope/internal/cache"
	"github.com/spherical-ai/trendscope/internal/config"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/embedding"
	"github.com/spherical-ai/trendscope/internal/ingest"
	"github.com/spherical-ai/trendscope/internal/llm"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/orchestrator"
	"github.com/spherical-ai/trendscope/internal/router"
	"github.com/spherical-ai/trendscope/internal/storage"
	"github.com/spherical-ai/trendscope/internal/synthesizer"
	"github.com/spherical-ai/trendscope/internal/vector"
)

// Options overrides pieces Build would otherwise construct from config.
type Options struct {
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Completer llm.Completer
	Embedder  embedding.Embedder
	// SkipIndexSync leaves an in-memory index empty instead of warming it from the store.
	SkipIndexSync bool
}

// Engine owns every shared handle of a running instance.
type Engine struct {
	Config       *config.Config
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Orchestrator *orchestrator.Orchestrator

	// Analytical and Semantic are nil when the agent is disabled.
	Analytical *analytical.Agent
	Semantic   *semantic.Agent

	Store     *storage.Store
	Index     vector.Adapter
	Embedder  embedding.Embedder
	Completer llm.Completer
	Cache     cache.Client

	closers []func() error
}

// Build connects to every configured dependency and wires the orchestrator.
// Startup failures are DEPENDENCY_UNAVAILABLE errors; anything opened before
// the failure is closed again.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Engine, err error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := newEngine(cfg, opts)
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	e.Completer = opts.Completer
	if e.Completer == nil {
		e.Completer, err = llm.New(llm.Config{
			Provider:    cfg.LLM.Provider,
			Endpoint:    cfg.LLM.Endpoint,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, domain.DependencyError("configure llm", err)
		}
	}

	if err := e.openCache(); err != nil {
		return nil, err
	}

	// The semantic agent needs the store only to warm an in-memory index.
	needStore := cfg.Orchestrator.EnableAnalytical ||
		(cfg.Orchestrator.EnableSemantic && isMemoryIndex(cfg) && !opts.SkipIndexSync)
	if needStore {
		e.Store, err = storage.Open(ctx, storage.Options{
			Path:         cfg.Store.Path,
			Table:        cfg.Store.Table,
			MaxOpenConns: cfg.Store.MaxOpenConns,
			ReadOnly:     true,
		})
		if err != nil {
			return nil, domain.DependencyError("open relational store", err)
		}
		e.closers = append(e.closers, e.Store.Close)
	}

	if cfg.Orchestrator.EnableSemantic {
		if err := e.openSemantic(ctx, opts); err != nil {
			return nil, err
		}
	}

	var agents []domain.Agent
	if cfg.Orchestrator.EnableAnalytical {
		e.Analytical = analytical.New(e.Logger, e.Completer, e.Store, analytical.Config{MaxTokens: cfg.LLM.MaxTokens})
		agents = append(agents, e.Analytical)
	}
	if e.Semantic != nil {
		agents = append(agents, e.Semantic)
	}

	e.Orchestrator = orchestrator.New(
		e.Logger,
		router.New(e.Logger, e.Completer, e.Cache, e.Metrics, router.Config{
			FallbackConfidence:   cfg.Router.FallbackConfidence,
			ShortQueryConfidence: cfg.Router.ShortQueryConfidence,
			ShortQueryTokens:     cfg.Router.ShortQueryTokens,
			CacheTTL:             cfg.Cache.RouteTTL,
		}),
		synthesizer.New(e.Logger, e.Completer, synthesizer.Config{MaxTokens: cfg.LLM.MaxTokens}),
		e.Metrics,
		orchestrator.Config{
			DefaultDeadline:   cfg.Deadline(),
			MaxConcurrent:     cfg.Orchestrator.MaxConcurrentRequests,
			Admission:         cfg.Orchestrator.Admission,
			QueryCeiling:      cfg.Orchestrator.QueryCeiling,
			DefaultMaxResults: cfg.Orchestrator.DefaultMaxResults,
			DefaultMinScore:   cfg.Orchestrator.DefaultMinScore,
		},
		agents...,
	)

	e.Logger.Info().
		Str("llm", e.Completer.Model()).
		Str("vector_adapter", cfg.Vector.Adapter).
		Bool("analytical", e.Analytical != nil).
		Bool("semantic", e.Semantic != nil).
		Msg("Engine ready")
	return e, nil
}

func newEngine(cfg *config.Config, opts Options) *Engine {
	e := &Engine{Config: cfg, Logger: opts.Logger, Metrics: opts.Metrics}
	if e.Logger == nil {
		e.Logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			Output:      os.Stderr,
			ServiceName: cfg.Observability.ServiceName,
		})
	}
	if e.Metrics == nil {
		e.Metrics = observability.NewMetrics()
	}
	return e
}

func (e *Engine) openCache() error {
	c, err := openCache(e.Config.Cache)
	if err != nil {
		return domain.DependencyError("connect cache", err)
	}
	e.Cache = c
	e.closers = append(e.closers, c.Close)
	return nil
}

// openIndex sets up the embedder and the vector index.
func (e *Engine) openIndex(ctx context.Context, opts Options) error {
	cfg := e.Config
	var err error

	e.Embedder = opts.Embedder
	if e.Embedder == nil {
		if e.Embedder, err = e.newEmbedder(); err != nil {
			return domain.DependencyError("configure embedder", err)
		}
	}

	e.Index, err = vector.New(ctx, vector.Config{
		Adapter:    cfg.Vector.Adapter,
		Address:    cfg.VectorAddress(),
		Collection: cfg.Vector.Collection,
		Dimension:  cfg.Vector.Dimension,
		DSN:        cfg.Vector.DSN,
	})
	if err != nil {
		return domain.DependencyError("connect vector index", err)
	}
	e.closers = append(e.closers, e.Index.Close)
	return nil
}

func (e *Engine) openSemantic(ctx context.Context, opts Options) error {
	cfg := e.Config
	if err := e.openIndex(ctx, opts); err != nil {
		return err
	}

	if isMemoryIndex(cfg) && !opts.SkipIndexSync {
		pipeline := ingest.NewPipeline(e.Logger, storage.NewVideoRepository(e.Store), e.Embedder, e.Index,
			ingest.Config{BatchSize: cfg.Embedding.BatchSize})
		if _, err := pipeline.SyncIndex(ctx, nil); err != nil {
			return domain.DependencyError("warm vector index", err)
		}
	}

	e.Semantic = semantic.New(e.Logger, e.Embedder, e.Index, e.Completer, semantic.Config{
		DefaultMinScore: cfg.Orchestrator.DefaultMinScore,
		MaxTokens:       cfg.LLM.MaxTokens,
	})
	return nil
}

// newEmbedder returns the remote embedding client, or a deterministic local
// embedder when no provider key is available.
func (e *Engine) newEmbedder() (embedding.Embedder, error) {
	cfg := e.Config
	key := cfg.EmbeddingAPIKey()
	if strings.EqualFold(cfg.LLM.Provider, "none") || key == "" {
		e.Logger.Warn().Int("dimension", cfg.Vector.Dimension).Msg("No embedding credentials, using local hash embedder")
		return embedding.NewMockClient(cfg.Vector.Dimension), nil
	}

	client, err := embedding.NewClient(embedding.Config{
		APIKey:    key,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.EmbeddingEndpoint(),
		Dimension: cfg.Vector.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Cache.EmbeddingTTL > 0 {
		return embedding.NewCachedEmbedder(client, e.Cache, cfg.Cache.EmbeddingTTL, e.Logger), nil
	}
	return client, nil
}

func openCache(cfg config.CacheConfig) (cache.Client, error) {
	if cfg.Driver == "redis" {
		return cache.NewRedisClient(cache.RedisConfig{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
	}
	return cache.NewMemoryClient(cfg.MaxEntries), nil
}

func isMemoryIndex(cfg *config.Config) bool {
	return cfg.Vector.Adapter == "" || cfg.Vector.Adapter == vector.AdapterMemory
}

// Close releases every handle in reverse order of opening.
func (e *Engine) Close() error {
	var result *multierror.Error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.closers = nil
	return result.ErrorOrNil()
}

// Seed loads records into a writable store and embeds them into the
// configured index. A memory index only lives for the duration of the call.
func Seed(ctx context.Context, cfg *config.Config, videos []domain.VideoRecord, progress ingest.Progress, opts Options) (*ingest.Result, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := newEngine(cfg, opts)
	defer e.Close()

	if err := e.openCache(); err != nil {
		return nil, err
	}
	if err := e.openIndex(ctx, opts); err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Path:         cfg.Store.Path,
		Table:        cfg.Store.Table,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
	if err != nil {
		return nil, domain.DependencyError("open relational store", err)
	}
	e.closers = append(e.closers, store.Close)

	pipeline := ingest.NewPipeline(e.Logger, storage.NewVideoRepository(store), e.Embedder, e.Index,
		ingest.Config{BatchSize: cfg.Embedding.BatchSize})
	result, err := pipeline.Seed(ctx, videos, progress)
	if err != nil {
		return result, fmt.Errorf("seed: %w", err)
	}
	return result, nil
}
