package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/storage"
	"github.com/spherical-ai/trendscope/internal/testutil"
)

func TestDriverFor(t *testing.T) {
	assert.Equal(t, storage.DriverPostgres, storage.DriverFor("postgres://u:p@localhost/db"))
	assert.Equal(t, storage.DriverPostgres, storage.DriverFor("postgresql://localhost/db"))
	assert.Equal(t, storage.DriverSQLite, storage.DriverFor("data/trending.db"))
}

func TestStore_QueryReadOnly(t *testing.T) {
	ctx := context.Background()
	store := testutil.ReadOnlyStore(t)

	res, err := store.Query(ctx,
		"SELECT channel_title, SUM(views) AS total_views FROM videos GROUP BY channel_title ORDER BY total_views DESC LIMIT 2")
	require.NoError(t, err)

	assert.Equal(t, []string{"channel_title", "total_views"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "SoundStage", res.Rows[0].String("channel_title"))
	total, ok := res.Rows[0].Float("total_views")
	require.True(t, ok)
	assert.Equal(t, float64(9_660_000), total)

	empty, err := store.Query(ctx, "SELECT title FROM videos WHERE views < 0")
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
	assert.NotNil(t, empty.Rows)

	_, err = store.DB().ExecContext(ctx, "DELETE FROM videos")
	assert.Error(t, err, "read-only handle rejects writes")

	repo := storage.NewVideoRepository(store)
	_, err = repo.Upsert(ctx, testutil.Videos())
	assert.ErrorIs(t, err, storage.ErrReadOnly)
}

func TestVideoRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := testutil.SeedSQLite(t)

	store, err := storage.Open(ctx, storage.Options{Path: path})
	require.NoError(t, err)
	defer store.Close()
	repo := storage.NewVideoRepository(store)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(testutil.Videos())), n)

	got, err := repo.GetByID(ctx, "v003")
	require.NoError(t, err)
	assert.Equal(t, "Live Concert Highlights", got.Title)
	assert.Equal(t, []string{"music", "live", "concert"}, got.Tags)
	assert.Equal(t, "2018-03-02", got.FirstTrendDate.Format("2006-01-02"))
	assert.Equal(t, 19, got.DaysTrendingUnique)

	updated := testutil.Videos()[2]
	updated.Views = 9_000_000
	_, err = repo.Upsert(ctx, []domain.VideoRecord{updated})
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, "v003")
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000), got.Views)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVideoRepository_Each(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewVideoRepository(testutil.ReadOnlyStore(t))

	var ids []string
	require.NoError(t, repo.Each(ctx, func(v domain.VideoRecord) error {
		ids = append(ids, v.VideoID)
		return nil
	}))
	require.Len(t, ids, len(testutil.Videos()))
	assert.Equal(t, "v001", ids[0])
	assert.IsIncreasing(t, ids)

	stop := errors.New("stop")
	calls := 0
	err := repo.Each(ctx, func(domain.VideoRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, storage.IsTransient(nil))
	assert.True(t, storage.IsTransient(&pq.Error{Code: "08006"}))
	assert.True(t, storage.IsTransient(&pq.Error{Code: "40001"}))
	assert.False(t, storage.IsTransient(&pq.Error{Code: "42P01"}))
}

func TestStore_PostgresIntegration(t *testing.T) {
	dsn := testutil.StartPostgres(t)
	ctx := context.Background()

	rw, err := storage.Open(ctx, storage.Options{Path: dsn})
	require.NoError(t, err)
	defer rw.Close()

	repo := storage.NewVideoRepository(rw)
	require.NoError(t, repo.EnsureSchema(ctx))
	_, err = repo.Upsert(ctx, testutil.Videos())
	require.NoError(t, err)

	ro, err := storage.Open(ctx, storage.Options{Path: dsn, ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	res, err := ro.Query(ctx, "SELECT title FROM videos ORDER BY likes DESC, video_id ASC LIMIT 1")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Live Concert Highlights", res.Rows[0].String("title"))

	_, err = ro.Query(ctx, "DELETE FROM videos RETURNING video_id")
	assert.Error(t, err, "READ ONLY transaction rejects writes")

	got, err := repo.GetByID(ctx, "v001")
	require.NoError(t, err)
	assert.Equal(t, "2018-01-03", got.FirstTrendDate.Format("2006-01-02"))
}
