package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spherical-ai/trendscope/internal/cache"
	"github.com/spherical-ai/trendscope/internal/observability"
)

// CachedEmbedder memoizes single-query embeddings in a cache.Client.
// Cache failures are logged and never fail the call.
type CachedEmbedder struct {
	inner  Embedder
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps inner. A nil logger disables cache warnings.
func NewCachedEmbedder(inner Embedder, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (e *CachedEmbedder) key(text string) string {
	return cache.HashKey("emb", e.inner.Model(), text)
}

// EmbedSingle returns the cached vector for text or computes and stores it.
func (e *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var v []float32
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil && len(v) == e.inner.Dimension() {
			return v, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		e.logger.Warn().Err(err).Msg("embedding cache read failed")
	}

	v, err := e.inner.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(v); err == nil {
		if err := e.cache.Set(ctx, key, raw, e.ttl); err != nil {
			e.logger.Warn().Err(err).Msg("embedding cache write failed")
		}
	}
	return v, nil
}

// Embed passes batches through uncached; batching is only used by seeding.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.Embed(ctx, texts)
}

func (e *CachedEmbedder) Model() string { return e.inner.Model() }

func (e *CachedEmbedder) Dimension() int { return e.inner.Dimension() }
