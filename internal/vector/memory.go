package vector

import (
	"context"
	"sync"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/embedding"
)

// MemoryAdapter is an exact, brute-force cosine index held in process memory.
// It applies filters with domain.Filter.Matches and is used for local runs and tests.
type MemoryAdapter struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string]indexedVector
}

type indexedVector struct {
	video  domain.VideoRecord
	raw    []float32
	vector []float32 // unit length
}

// NewMemoryAdapter creates an empty index. A dimension of 0 accepts the first inserted length.
func NewMemoryAdapter(dimension int) *MemoryAdapter {
	return &MemoryAdapter{
		dimension: dimension,
		vectors:   make(map[string]indexedVector),
	}
}

// Search finds the k nearest neighbors using cosine similarity.
func (a *MemoryAdapter) Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := checkDimension(a.dimension, query, "query"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	q := embedding.Normalize(append([]float32(nil), query...))
	hits := make([]Hit, 0, len(a.vectors))
	for _, iv := range a.vectors {
		if !filter.Matches(iv.video) {
			continue
		}
		hits = append(hits, Hit{Video: iv.video, Score: cosine(q, iv.vector)})
	}

	sortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Upsert adds vectors to the index, replacing entries with the same video ID.
func (a *MemoryAdapter) Upsert(ctx context.Context, entries []Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		if a.dimension == 0 {
			a.dimension = len(e.Vector)
		}
		if err := checkDimension(a.dimension, e.Vector, e.Video.VideoID); err != nil {
			return err
		}
		raw := append([]float32(nil), e.Vector...)
		a.vectors[e.Video.VideoID] = indexedVector{
			video:  e.Video,
			raw:    raw,
			vector: embedding.Normalize(append([]float32(nil), raw...)),
		}
	}
	return nil
}

// Get returns the stored entry for videoID.
func (a *MemoryAdapter) Get(ctx context.Context, videoID string) (*Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	iv, ok := a.vectors[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return &Entry{Video: iv.video, Vector: append([]float32(nil), iv.raw...)}, nil
}

// Count returns the number of vectors in the index.
func (a *MemoryAdapter) Count(ctx context.Context) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int64(len(a.vectors)), nil
}

// Facets returns the distinct filter values present in the index.
func (a *MemoryAdapter) Facets(ctx context.Context) (domain.Statistics, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	categories := map[string]struct{}{}
	countries := map[string]struct{}{}
	languages := map[string]struct{}{}
	for _, iv := range a.vectors {
		categories[iv.video.Category] = struct{}{}
		countries[iv.video.Country] = struct{}{}
		languages[iv.video.Language] = struct{}{}
	}
	return domain.Statistics{
		TotalDocuments: int64(len(a.vectors)),
		Categories:     sortedKeys(categories),
		Countries:      sortedKeys(countries),
		Languages:      sortedKeys(languages),
	}, nil
}

// Ping always succeeds.
func (a *MemoryAdapter) Ping(ctx context.Context) error { return nil }

// Close releases resources.
func (a *MemoryAdapter) Close() error { return nil }

// cosine computes the dot product of two unit vectors, clamped to [-1, 1].
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	// Clamp to [-1, 1] range due to floating point errors
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return dot
}

var _ Adapter = (*MemoryAdapter)(nil)
