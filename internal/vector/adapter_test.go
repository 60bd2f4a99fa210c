package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/embedding"
	"github.com/spherical-ai/trendscope/internal/testutil"
)

const testDim = 256

func seedAdapter(t *testing.T, a Adapter) *embedding.MockClient {
	t.Helper()
	ctx := context.Background()
	emb := embedding.NewMockClient(testDim)

	videos := testutil.Videos()
	texts := make([]string, len(videos))
	for i, v := range videos {
		texts[i] = v.SearchableText
	}
	vecs, err := emb.Embed(ctx, texts)
	require.NoError(t, err)

	entries := make([]Entry, len(videos))
	for i, v := range videos {
		entries[i] = Entry{Video: v, Vector: vecs[i]}
	}
	require.NoError(t, a.Upsert(ctx, entries))
	return emb
}

func TestMemoryAdapter_Search(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter(testDim)
	emb := seedAdapter(t, a)

	q, err := emb.EmbedSingle(ctx, "pasta recipes")
	require.NoError(t, err)

	tests := []struct {
		name    string
		filter  *domain.Filter
		k       int
		wantIDs []string
		wantLen int
	}{
		{name: "unfiltered top hit", k: 2, wantIDs: []string{"v001"}},
		{name: "country filter case-insensitive", k: 10, filter: &domain.Filter{Country: "us", Category: "travel & events"}, wantIDs: []string{"v004"}, wantLen: 1},
		{name: "views range", k: 10, filter: &domain.Filter{Views: domain.AtLeast(5_000_000)}, wantIDs: []string{"v003"}, wantLen: 1},
		{name: "tag intersection", k: 10, filter: &domain.Filter{Tags: []string{"Gaming", "nothing"}}, wantLen: 2},
		{name: "no match", k: 10, filter: &domain.Filter{Country: "JP"}, wantLen: 0},
		{name: "k zero", k: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := a.Search(ctx, q, tt.k, tt.filter)
			require.NoError(t, err)
			if tt.wantLen > 0 || tt.k == 0 || tt.filter != nil {
				assert.Len(t, hits, tt.wantLen)
			}
			for i, id := range tt.wantIDs {
				assert.Equal(t, id, hits[i].Video.VideoID)
			}
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
			}
		})
	}
}

func TestMemoryAdapter_TieBreakByVideoID(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter(2)
	vec := []float32{1, 0}
	require.NoError(t, a.Upsert(ctx, []Entry{
		{Video: domain.VideoRecord{VideoID: "b"}, Vector: vec},
		{Video: domain.VideoRecord{VideoID: "a"}, Vector: vec},
		{Video: domain.VideoRecord{VideoID: "c"}, Vector: []float32{0, 1}},
	}))

	hits, err := a.Search(ctx, vec, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].Video.VideoID, hits[1].Video.VideoID, hits[2].Video.VideoID})
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestMemoryAdapter_GetCountFacets(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter(testDim)
	seedAdapter(t, a)

	got, err := a.Get(ctx, "v002")
	require.NoError(t, err)
	assert.Equal(t, "PixelRush", got.Video.Channel)
	assert.Len(t, got.Vector, testDim)

	_, err = a.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	stats, err := a.Facets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CA", "GB", "MX", "US"}, stats.Countries)
	assert.Equal(t, []string{"en", "es"}, stats.Languages)
	assert.Contains(t, stats.Categories, "Gaming")
	assert.Equal(t, int64(8), stats.TotalDocuments)
}

func TestMemoryAdapter_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter(3)

	err := a.Upsert(ctx, []Entry{{Video: domain.VideoRecord{VideoID: "x"}, Vector: []float32{1, 2}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = a.Search(ctx, []float32{1}, 1, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMilvusExpr(t *testing.T) {
	catID := 10
	tests := []struct {
		name   string
		filter *domain.Filter
		want   string
	}{
		{name: "nil", filter: nil, want: ""},
		{name: "empty", filter: &domain.Filter{Views: &domain.Range{}}, want: ""},
		{
			name:   "exact fields lowercased",
			filter: &domain.Filter{Category: "Music", Country: "CA", CategoryID: &catID},
			want:   `category_key == "music" and category_id == 10 and country_key == "ca"`,
		},
		{
			name:   "ranges",
			filter: &domain.Filter{Views: domain.Between(100, 200), DaysTrending: domain.AtLeast(5)},
			want:   `views >= 100 and views <= 200 and days_trending >= 5`,
		},
		{
			name:   "tags and quoting",
			filter: &domain.Filter{Channel: `Say "Hi"`, Tags: []string{"Live", "music"}},
			want:   `channel_key == "say \"hi\"" and (tags_key like "%|live|%" or tags_key like "%|music|%")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, milvusExpr(tt.filter))
		})
	}
}

func TestPGWhere(t *testing.T) {
	where, args := pgWhere(&domain.Filter{Country: "US", Likes: domain.AtMost(500), Tags: []string{"Music"}}, 2)
	assert.Equal(t,
		" WHERE lower(country) = lower($2) AND likes <= $3 AND EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE lower(t) = ANY($4))",
		where)
	assert.Equal(t, []any{"US", int64(500), []string{"music"}}, args)

	where, args = pgWhere(nil, 2)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestTags(t *testing.T) {
	assert.Equal(t, "|music|live|", joinTags([]string{"Music", " live "}))
	assert.Equal(t, "", joinTags(nil))
	assert.Equal(t, []string{"a", "b"}, splitTags("a|b"))
	assert.Nil(t, splitTags(""))
}

func TestPGVectorAdapter_Integration(t *testing.T) {
	dsn := testutil.StartPostgres(t)
	ctx := context.Background()

	a, err := NewPGVectorAdapter(ctx, PGVectorConfig{DSN: dsn, Dimension: testDim})
	require.NoError(t, err)
	defer a.Close()
	emb := seedAdapter(t, a)

	require.NoError(t, a.Ping(ctx))
	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	q, err := emb.EmbedSingle(ctx, "gaming")
	require.NoError(t, err)
	hits, err := a.Search(ctx, q, 5, &domain.Filter{Category: "gaming"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "Gaming", h.Video.Category)
	}

	got, err := a.Get(ctx, "v003")
	require.NoError(t, err)
	assert.Equal(t, []string{"music", "live", "concert"}, got.Video.Tags)
	assert.Len(t, got.Vector, testDim)
	assert.Equal(t, "2018-03-02", got.Video.FirstTrendDate.Format("2006-01-02"))

	_, err = a.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := a.Facets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CA", "GB", "MX", "US"}, stats.Countries)
}
