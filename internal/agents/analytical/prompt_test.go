package analytical

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/trendscope/internal/domain"
)

func TestPredicates(t *testing.T) {
	id := 20
	tests := []struct {
		name   string
		filter *domain.Filter
		want   []string
	}{
		{"nil", nil, nil},
		{"empty", &domain.Filter{}, nil},
		{
			"exact fields are case-insensitive and escaped",
			&domain.Filter{Category: "Gaming", Channel: "Rock'n Roll"},
			[]string{"LOWER(category_name) = LOWER('Gaming')", "LOWER(channel_title) = LOWER('Rock''n Roll')"},
		},
		{
			"ranges",
			&domain.Filter{Views: domain.AtLeast(1_000_000), Likes: domain.AtMost(500), DaysTrending: domain.Between(2, 5)},
			[]string{"views >= 1000000", "likes <= 500", "days_trending_unique BETWEEN 2 AND 5"},
		},
		{
			"category id and tags",
			&domain.Filter{CategoryID: &id, Tags: []string{"Minecraft", "speedrun"}},
			[]string{"category_id = 20", "(LOWER(tags) LIKE '%minecraft%' OR LOWER(tags) LIKE '%speedrun%')"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Predicates(tt.filter))
		})
	}
}

func TestUnenforcedFilter(t *testing.T) {
	id := 10
	tests := []struct {
		name   string
		sql    string
		filter *domain.Filter
		want   string
	}{
		{"no filter", "SELECT title FROM videos", nil, ""},
		{
			"verbatim predicates",
			"SELECT title FROM videos WHERE LOWER(category_name) = LOWER('Music')  AND views >= 10",
			&domain.Filter{Category: "Music", Views: domain.AtLeast(10)},
			"",
		},
		{
			"equivalent forms",
			"SELECT title FROM videos WHERE category_name = 'music' AND views > 9 AND likes BETWEEN 5 AND 50",
			&domain.Filter{Category: "Music", Views: domain.AtLeast(10), Likes: domain.Between(1, 100)},
			"",
		},
		{
			"looser bound is rejected",
			"SELECT title FROM videos WHERE views >= 0",
			&domain.Filter{Views: domain.AtLeast(1_000_000)},
			"views >= 1000000",
		},
		{
			"column named without the value",
			"SELECT title FROM videos WHERE LOWER(category_name) = LOWER('Gaming')",
			&domain.Filter{Category: "Music"},
			"LOWER(category_name) = LOWER('Music')",
		},
		{
			"aggregate alias does not count",
			"SELECT SUM(total_views) FROM videos WHERE LOWER(category_name) = LOWER('Music')",
			&domain.Filter{Category: "Music", Views: domain.AtLeast(10)},
			"views >= 10",
		},
		{
			"upper bound needs both sides",
			"SELECT title FROM videos WHERE days_trending_unique >= 2",
			&domain.Filter{DaysTrending: domain.Between(2, 5)},
			"days_trending_unique BETWEEN 2 AND 5",
		},
		{
			"category id and tags",
			"SELECT title FROM videos WHERE category_id = 10 AND LOWER(tags) LIKE '%speedrun%'",
			&domain.Filter{CategoryID: &id, Tags: []string{"minecraft", "speedrun"}},
			"",
		},
		{
			"missing tag",
			"SELECT title FROM videos WHERE category_id = 10",
			&domain.Filter{CategoryID: &id, Tags: []string{"minecraft"}},
			"LOWER(tags) LIKE '%minecraft%'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unenforcedFilter(tt.sql, tt.filter))
		})
	}
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"fenced", "```sql\nSELECT title FROM videos\n```", "SELECT title FROM videos"},
		{"fenced without language", "```\nSELECT title FROM videos\n```", "SELECT title FROM videos"},
		{"prose before", "Here is the query:\nSELECT title FROM videos", "SELECT title FROM videos"},
		{"inline label", "SQL: SELECT title FROM videos", "SELECT title FROM videos"},
		{"cte", "WITH t AS (SELECT views FROM videos) SELECT MAX(views) FROM t", "WITH t AS (SELECT views FROM videos) SELECT MAX(views) FROM t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSQL(tt.in))
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1,234,567", formatValue(int64(1_234_567)))
	assert.Equal(t, "-1,000", formatValue(int64(-1000)))
	assert.Equal(t, "999", formatValue(999))
	assert.Equal(t, "62,500", formatValue(62500.0))
	assert.Equal(t, "3.14", formatValue(3.14159))
	assert.Equal(t, "a/b", formatValue("a|b"))
	assert.Equal(t, "", formatValue(nil))
}
