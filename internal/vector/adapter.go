// Package vector provides similarity search over embedded video records.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Adapter names accepted by New.
const (
	AdapterMemory   = "memory"
	AdapterMilvus   = "milvus"
	AdapterPGVector = "pgvector"
)

var (
	// ErrNotFound is returned by Get for an unknown video ID.
	ErrNotFound = errors.New("vector not found")
	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Adapter defines the interface for vector similarity search.
type Adapter interface {
	// Search returns up to k records nearest to query by cosine similarity,
	// restricted to records matching filter. Hits are ordered by score descending.
	Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]Hit, error)

	// Upsert adds or replaces entries keyed by video ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Get returns the stored entry for videoID or ErrNotFound.
	Get(ctx context.Context, videoID string) (*Entry, error)

	// Count returns the number of vectors in the index.
	Count(ctx context.Context) (int64, error)

	// Facets returns the distinct categories, countries and languages in the index.
	Facets(ctx context.Context) (domain.Statistics, error)

	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Entry is one record to be indexed.
type Entry struct {
	Video  domain.VideoRecord
	Vector []float32
}

// Hit is a search result. Score is cosine similarity in [-1, 1].
type Hit struct {
	Video domain.VideoRecord
	Score float32
}

// Config selects and configures an adapter.
type Config struct {
	Adapter    string
	Address    string
	Collection string
	Dimension  int
	DSN        string
}

// New constructs the adapter named by cfg.Adapter.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	switch strings.ToLower(cfg.Adapter) {
	case "", AdapterMemory:
		return NewMemoryAdapter(cfg.Dimension), nil
	case AdapterMilvus:
		return NewMilvusAdapter(ctx, MilvusConfig{
			Address:    cfg.Address,
			Collection: cfg.Collection,
			Dimension:  cfg.Dimension,
		})
	case AdapterPGVector:
		return NewPGVectorAdapter(ctx, PGVectorConfig{
			DSN:       cfg.DSN,
			Table:     cfg.Collection,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown vector adapter: %s", cfg.Adapter)
	}
}

func checkDimension(dim int, vec []float32, id string) error {
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: expected %d, got %d for id %s", ErrDimensionMismatch, dim, len(vec), id)
	}
	return nil
}

// sortHits orders by score descending, then video ID ascending.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Video.VideoID < hits[j].Video.VideoID
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return "|" + strings.Join(lowered, "|") + "|"
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, "|") {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
