package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/embedding"
	"github.com/spherical-ai/trendscope/internal/storage"
	"github.com/spherical-ai/trendscope/internal/testutil"
	"github.com/spherical-ai/trendscope/internal/vector"
)

func writableStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.Options{Path: filepath.Join(t.TempDir(), "seed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPipeline_Seed(t *testing.T) {
	ctx := context.Background()
	store := writableStore(t)
	repo := storage.NewVideoRepository(store)
	index := vector.NewMemoryAdapter(64)
	p := NewPipeline(nil, repo, embedding.NewMockClient(64), index, Config{BatchSize: 3})

	var progress [][2]int
	res, err := p.Seed(ctx, testutil.Videos(), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)

	total := len(testutil.Videos())
	assert.Equal(t, total, res.Stored)
	assert.Equal(t, total, res.Indexed)
	assert.Equal(t, [][2]int{{3, total}, {6, total}, {total, total}}, progress)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(total), n)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(total), count)

	entry, err := index.Get(ctx, "v003")
	require.NoError(t, err)
	assert.Equal(t, "SoundStage", entry.Video.Channel)
	assert.Len(t, entry.Vector, 64)

	// Seeding again replaces rows instead of duplicating them.
	_, err = p.Seed(ctx, testutil.Videos(), nil)
	require.NoError(t, err)
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(total), n)
}

func TestPipeline_SeedErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewPipeline(nil, nil, embedding.NewMockClient(8), vector.NewMemoryAdapter(8), Config{}).
		Seed(ctx, testutil.Videos(), nil)
	assert.ErrorContains(t, err, "writable store")

	ro := storage.NewVideoRepository(testutil.ReadOnlyStore(t))
	_, err = NewPipeline(nil, ro, embedding.NewMockClient(8), vector.NewMemoryAdapter(8), Config{}).
		Seed(ctx, testutil.Videos(), nil)
	assert.ErrorIs(t, err, storage.ErrReadOnly)

	emb := embedding.NewMockClient(8)
	emb.FailWith(errors.New("quota exceeded"))
	res, err := NewPipeline(nil, storage.NewVideoRepository(writableStore(t)), emb, vector.NewMemoryAdapter(8), Config{}).
		Seed(ctx, testutil.Videos(), nil)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, len(testutil.Videos()), res.Stored)
	assert.Zero(t, res.Indexed)
}

func TestPipeline_SyncIndex(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewMockClient(32)
	index := vector.NewMemoryAdapter(32)
	p := NewPipeline(nil, storage.NewVideoRepository(testutil.ReadOnlyStore(t)), emb, index, Config{})

	res, err := p.SyncIndex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, len(testutil.Videos()), res.Indexed)

	entry, err := index.Get(ctx, "v001")
	require.NoError(t, err)
	assert.Equal(t, entry.Video.BuildSearchableText(), entry.Video.SearchableText)

	want, err := emb.EmbedSingle(ctx, entry.Video.SearchableText)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, entry.Vector, 1e-6)
}
