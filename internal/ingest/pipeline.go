// Package ingest loads video records into the relational store and the
// vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/embedding"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/storage"
	"github.com/spherical-ai/trendscope/internal/vector"
)

// Progress is called after every indexed batch.
type Progress func(done, total int)

// Config holds pipeline settings.
type Config struct {
	BatchSize int
}

// Result reports what one run wrote.
type Result struct {
	Stored   int
	Indexed  int
	Duration time.Duration
}

// Pipeline writes records to the store and embeds them into the index.
type Pipeline struct {
	logger   *observability.Logger
	repo     *storage.VideoRepository
	embedder embedding.Embedder
	index    vector.Adapter
	config   Config
}

// NewPipeline creates a pipeline. repo may be nil when only the index is written.
func NewPipeline(
	logger *observability.Logger,
	repo *storage.VideoRepository,
	embedder embedding.Embedder,
	index vector.Adapter,
	cfg Config,
) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{
		logger:   logger.WithOperation("ingest"),
		repo:     repo,
		embedder: embedder,
		index:    index,
		config:   cfg,
	}
}

// Seed writes videos to the store, then embeds and indexes them.
func (p *Pipeline) Seed(ctx context.Context, videos []domain.VideoRecord, progress Progress) (*Result, error) {
	start := time.Now()
	result := &Result{}
	if p.repo == nil {
		return result, errors.New("seed requires a writable store")
	}

	if err := p.repo.EnsureSchema(ctx); err != nil {
		return result, fmt.Errorf("ensure schema: %w", err)
	}
	n, err := p.repo.Upsert(ctx, videos)
	if err != nil {
		return result, fmt.Errorf("store videos: %w", err)
	}
	result.Stored = n

	result.Indexed, err = p.indexAll(ctx, videos, progress)
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	p.logger.Info().
		Int("stored", result.Stored).
		Int("indexed", result.Indexed).
		Dur("duration", result.Duration).
		Msg("Seed completed")
	return result, nil
}

// SyncIndex embeds every video already in the store into the index. It is
// used to warm an in-memory index at startup.
func (p *Pipeline) SyncIndex(ctx context.Context, progress Progress) (*Result, error) {
	start := time.Now()
	result := &Result{}
	if p.repo == nil {
		return result, errors.New("sync requires a store")
	}

	var videos []domain.VideoRecord
	if err := p.repo.Each(ctx, func(v domain.VideoRecord) error {
		v.SearchableText = v.BuildSearchableText()
		videos = append(videos, v)
		return nil
	}); err != nil {
		return result, fmt.Errorf("read store: %w", err)
	}

	var err error
	result.Indexed, err = p.indexAll(ctx, videos, progress)
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	p.logger.Info().Int("indexed", result.Indexed).Dur("duration", result.Duration).Msg("Vector index synced from store")
	return result, nil
}

func (p *Pipeline) indexAll(ctx context.Context, videos []domain.VideoRecord, progress Progress) (int, error) {
	if p.embedder == nil || p.index == nil {
		return 0, errors.New("indexing requires an embedder and a vector index")
	}

	indexed := 0
	for i := 0; i < len(videos); i += p.config.BatchSize {
		end := min(i+p.config.BatchSize, len(videos))
		batch := videos[i:end]

		texts := make([]string, len(batch))
		for j := range batch {
			if batch[j].SearchableText == "" {
				batch[j].SearchableText = batch[j].BuildSearchableText()
			}
			texts[j] = batch[j].SearchableText
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		if len(vectors) != len(batch) {
			return indexed, fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", i, end, len(vectors), len(batch))
		}

		entries := make([]vector.Entry, len(batch))
		for j, v := range batch {
			entries[j] = vector.Entry{Video: v, Vector: vectors[j]}
		}
		if err := p.index.Upsert(ctx, entries); err != nil {
			return indexed, fmt.Errorf("index batch %d-%d: %w", i, end, err)
		}

		indexed += len(batch)
		if progress != nil {
			progress(indexed, len(videos))
		}
		p.logger.Debug().Int("indexed", indexed).Int("total", len(videos)).Msg("Indexed batch")
	}
	return indexed, nil
}
