package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/storage"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// Videos returns a small, varied corpus of trending video records.
func Videos() []domain.VideoRecord {
	videos := []domain.VideoRecord{
		{
			VideoID: "v001", Title: "Easy Pasta Recipes for Beginners", Channel: "KitchenLab",
			Category: "Howto & Style", CategoryID: 26, Country: "US", Language: "en",
			Views: 1_200_000, Likes: 54_000, CommentCount: 3_100,
			PublishTime: day("2018-01-02"), FirstTrendDate: day("2018-01-03"), LastTrendDate: day("2018-01-09"),
			DaysTrendingUnique: 7, LongestConsecutiveStreakDays: 7,
			Tags: []string{"cooking", "pasta", "recipes"}, Description: "Three quick pasta recipes anyone can cook.",
		},
		{
			VideoID: "v002", Title: "Speedrun World Record Attempt", Channel: "PixelRush",
			Category: "Gaming", CategoryID: 20, Country: "CA", Language: "en",
			Views: 3_400_000, Likes: 210_000, CommentCount: 15_000,
			PublishTime: day("2018-02-10"), FirstTrendDate: day("2018-02-11"), LastTrendDate: day("2018-02-14"),
			DaysTrendingUnique: 4, LongestConsecutiveStreakDays: 4,
			Tags: []string{"gaming", "speedrun"}, Description: "Live gaming speedrun with commentary.",
		},
		{
			VideoID: "v003", Title: "Live Concert Highlights", Channel: "SoundStage",
			Category: "Music", CategoryID: 10, Country: "GB", Language: "en",
			Views: 8_900_000, Likes: 640_000, CommentCount: 42_000,
			PublishTime: day("2018-03-01"), FirstTrendDate: day("2018-03-02"), LastTrendDate: day("2018-03-20"),
			DaysTrendingUnique: 19, LongestConsecutiveStreakDays: 12,
			Tags: []string{"music", "live", "concert"}, Description: "The best moments of the summer music concert.",
		},
		{
			VideoID: "v004", Title: "Street Food Cooking Tour", Channel: "KitchenLab",
			Category: "Travel & Events", CategoryID: 19, Country: "US", Language: "en",
			Views: 450_000, Likes: 21_000, CommentCount: 900,
			PublishTime: day("2018-01-20"), FirstTrendDate: day("2018-01-21"), LastTrendDate: day("2018-01-23"),
			DaysTrendingUnique: 3, LongestConsecutiveStreakDays: 3,
			Tags: []string{"cooking", "travel", "food"}, Description: "Cooking street food recipes across the city.",
		},
		{
			VideoID: "v005", Title: "Retro Gaming Console Review", Channel: "PixelRush",
			Category: "Gaming", CategoryID: 20, Country: "US", Language: "en",
			Views: 980_000, Likes: 61_000, CommentCount: 4_800,
			PublishTime: day("2018-04-05"), FirstTrendDate: day("2018-04-06"), LastTrendDate: day("2018-04-11"),
			DaysTrendingUnique: 6, LongestConsecutiveStreakDays: 5,
			Tags: []string{"gaming", "review", "retro"}, Description: "Reviewing a retro gaming console.",
		},
		{
			VideoID: "v006", Title: "Noticias de la semana", Channel: "Canal Diario",
			Category: "News & Politics", CategoryID: 25, Country: "MX", Language: "es",
			Views: 300_000, Likes: 8_000, CommentCount: 1_200,
			PublishTime: day("2018-05-01"), FirstTrendDate: day("2018-05-02"), LastTrendDate: day("2018-05-03"),
			DaysTrendingUnique: 2, LongestConsecutiveStreakDays: 2,
			Tags: []string{"noticias"}, Description: "Resumen de noticias.",
		},
		{
			VideoID: "v007", Title: "Stand-up Comedy Special", Channel: "LaughTrack",
			Category: "Comedy", CategoryID: 23, Country: "CA", Language: "en",
			Views: 2_100_000, Likes: 150_000, CommentCount: 9_000,
			PublishTime: day("2018-06-15"), FirstTrendDate: day("2018-06-16"), LastTrendDate: day("2018-06-26"),
			DaysTrendingUnique: 11, LongestConsecutiveStreakDays: 9,
			Tags: []string{"comedy", "standup"}, Description: "A full comedy special recorded live.",
		},
		{
			VideoID: "v008", Title: "Acoustic Music Session", Channel: "SoundStage",
			Category: "Music", CategoryID: 10, Country: "US", Language: "en",
			Views: 760_000, Likes: 70_000, CommentCount: 2_500,
			PublishTime: day("2018-07-01"), FirstTrendDate: day("2018-07-02"), LastTrendDate: day("2018-07-05"),
			DaysTrendingUnique: 4, LongestConsecutiveStreakDays: 4,
			Tags: []string{"music", "acoustic"}, Description: "An intimate acoustic music session.",
		},
	}
	for i := range videos {
		videos[i].SearchableText = videos[i].BuildSearchableText()
	}
	return videos
}

// SeedSQLite writes Videos into a fresh SQLite file and returns its path.
func SeedSQLite(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trending.db")

	rw, err := storage.Open(ctx, storage.Options{Path: path})
	require.NoError(t, err)
	defer rw.Close()

	repo := storage.NewVideoRepository(rw)
	require.NoError(t, repo.EnsureSchema(ctx))
	_, err = repo.Upsert(ctx, Videos())
	require.NoError(t, err)
	return path
}

// ReadOnlyStore seeds a SQLite file and opens it read-only.
func ReadOnlyStore(t *testing.T) *storage.Store {
	t.Helper()
	path := SeedSQLite(t)
	store, err := storage.Open(context.Background(), storage.Options{Path: path, ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
