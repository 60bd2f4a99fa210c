package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAll_Records(t *testing.T) {
	input := `{"video_id":"v1","title":"Easy Pasta","channel_title":"KitchenLab","category_name":"Howto & Style","category_id":26,"country":"US","language":"en","views":1200000,"likes":54000,"comment_count":3100,"publish_time":"2018-01-02T10:00:00Z","first_trend_date":"2018-01-03","last_trend_date":"2018-01-09","days_trending_unique":7,"longest_consecutive_streak_days":7,"tags":["cooking","pasta"],"description":"Quick pasta."}

{"video_id":"v2","title":"Speedrun","tags":"gaming|speedrun| ","publish_time":"2018-02-01 08:30:00"}
`
	videos, err := ParseAll(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, videos, 2)

	v := videos[0]
	assert.Equal(t, "v1", v.VideoID)
	assert.Equal(t, "KitchenLab", v.Channel)
	assert.Equal(t, "Howto & Style", v.Category)
	assert.Equal(t, 26, v.CategoryID)
	assert.Equal(t, int64(1_200_000), v.Views)
	assert.Equal(t, []string{"cooking", "pasta"}, v.Tags)
	assert.Equal(t, "2018-01-03", v.FirstTrendDate.Format("2006-01-02"))
	assert.Equal(t, 10, v.PublishTime.Hour())
	assert.Equal(t, v.BuildSearchableText(), v.SearchableText)
	assert.Contains(t, v.SearchableText, "Channel: KitchenLab")

	assert.Equal(t, []string{"gaming", "speedrun"}, videos[1].Tags)
	assert.True(t, videos[1].FirstTrendDate.IsZero())
}

func TestParseAll_CollectsEveryBadLine(t *testing.T) {
	input := strings.Join([]string{
		`{"video_id":"ok","title":"Fine"}`,
		`{"title":"missing id"}`,
		`not json`,
		`{"video_id":"v3","title":"bad date","publish_time":"yesterday"}`,
		`{"video_id":"v4","title":"bad tags","tags":42}`,
		`{"video_id":"v5"}`,
	}, "\n")

	videos, err := ParseAll(strings.NewReader(input))

	require.Error(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "ok", videos[0].VideoID)

	msg := err.Error()
	for _, want := range []string{
		"line 2: video_id is required",
		"line 3: decode record",
		"line 4: video v3: publish_time",
		"line 5: video v4: tags must be",
		"line 6: video v5: title is required",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestParser_Next(t *testing.T) {
	p := NewParser(strings.NewReader("\n\n{\"video_id\":\"a\",\"title\":\"A\"}\n"))

	v, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", v.VideoID)

	_, err = p.Next()
	assert.ErrorContains(t, err, "EOF")
	_, err = p.Next()
	assert.ErrorContains(t, err, "EOF")
}

func TestParseAll_Empty(t *testing.T) {
	videos, err := ParseAll(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, videos)
}
