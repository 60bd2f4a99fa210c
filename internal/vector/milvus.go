package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Milvus field names. The *_key fields hold lowercased copies used for
// case-insensitive filtering; tags_key is "|tag1|tag2|".
const (
	fieldVideoID      = "video_id"
	fieldTitle        = "title"
	fieldChannel      = "channel"
	fieldChannelKey   = "channel_key"
	fieldCategory     = "category"
	fieldCategoryKey  = "category_key"
	fieldCategoryID   = "category_id"
	fieldCountry      = "country"
	fieldCountryKey   = "country_key"
	fieldLanguage     = "language"
	fieldLanguageKey  = "language_key"
	fieldViews        = "views"
	fieldLikes        = "likes"
	fieldComments     = "comment_count"
	fieldPublishTime  = "publish_time"
	fieldFirstTrend   = "first_trend_date"
	fieldLastTrend    = "last_trend_date"
	fieldDaysTrending = "days_trending"
	fieldStreak       = "longest_streak"
	fieldTags         = "tags"
	fieldTagsKey      = "tags_key"
	fieldDescription  = "description"
	fieldEmbedding    = "embedding"

	milvusQueryLimit = 16384
)

var milvusOutputFields = []string{
	fieldVideoID, fieldTitle, fieldChannel, fieldCategory, fieldCategoryID, fieldCountry,
	fieldLanguage, fieldViews, fieldLikes, fieldComments, fieldPublishTime, fieldFirstTrend,
	fieldLastTrend, fieldDaysTrending, fieldStreak, fieldTags, fieldDescription,
}

// MilvusConfig holds Milvus adapter configuration.
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Dimension  int
}

// MilvusAdapter implements Adapter on a Milvus collection with an HNSW cosine index.
type MilvusAdapter struct {
	client     client.Client
	collection string
	dimension  int
}

// NewMilvusAdapter connects to Milvus, creating and loading the collection if needed.
func NewMilvusAdapter(ctx context.Context, cfg MilvusConfig) (*MilvusAdapter, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:19530"
	}
	if cfg.Collection == "" {
		cfg.Collection = "trending_videos"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus adapter requires a positive dimension")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.NewClient(connectCtx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, domain.IndexError("connect to milvus", err)
	}

	a := &MilvusAdapter{client: c, collection: cfg.Collection, dimension: cfg.Dimension}
	if err := a.ensureCollection(connectCtx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return a, nil
}

func (a *MilvusAdapter) ensureCollection(ctx context.Context) error {
	has, err := a.client.HasCollection(ctx, a.collection)
	if err != nil {
		return domain.IndexError("check collection", err)
	}

	if !has {
		varchar := func(name string, maxLen int64) *entity.Field {
			return entity.NewField().WithName(name).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxLen)
		}
		int64Field := func(name string) *entity.Field {
			return entity.NewField().WithName(name).WithDataType(entity.FieldTypeInt64)
		}

		schema := entity.NewSchema().
			WithName(a.collection).
			WithDescription("trending video records").
			WithField(varchar(fieldVideoID, 64).WithIsPrimaryKey(true)).
			WithField(varchar(fieldTitle, 512)).
			WithField(varchar(fieldChannel, 256)).
			WithField(varchar(fieldChannelKey, 256)).
			WithField(varchar(fieldCategory, 128)).
			WithField(varchar(fieldCategoryKey, 128)).
			WithField(int64Field(fieldCategoryID)).
			WithField(varchar(fieldCountry, 16)).
			WithField(varchar(fieldCountryKey, 16)).
			WithField(varchar(fieldLanguage, 16)).
			WithField(varchar(fieldLanguageKey, 16)).
			WithField(int64Field(fieldViews)).
			WithField(int64Field(fieldLikes)).
			WithField(int64Field(fieldComments)).
			WithField(int64Field(fieldPublishTime)).
			WithField(int64Field(fieldFirstTrend)).
			WithField(int64Field(fieldLastTrend)).
			WithField(int64Field(fieldDaysTrending)).
			WithField(int64Field(fieldStreak)).
			WithField(varchar(fieldTags, 4096)).
			WithField(varchar(fieldTagsKey, 4096)).
			WithField(varchar(fieldDescription, 2048)).
			WithField(entity.NewField().
				WithName(fieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(a.dimension)))

		if err := a.client.CreateCollection(ctx, schema, 1); err != nil {
			return domain.IndexError("create collection", err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
		if err != nil {
			return domain.IndexError("build index params", err)
		}
		if err := a.client.CreateIndex(ctx, a.collection, fieldEmbedding, idx, false); err != nil {
			return domain.IndexError("create index", err)
		}
	}

	if err := a.client.LoadCollection(ctx, a.collection, false); err != nil {
		return domain.IndexError("load collection", err)
	}
	return nil
}

// Search runs an HNSW cosine search with filter pushed down as a boolean expression.
func (a *MilvusAdapter) Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]Hit, error) {
	if err := checkDimension(a.dimension, query, "query"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	ef := 64
	if k > ef {
		ef = k
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, fmt.Errorf("search params: %w", err)
	}

	results, err := a.client.Search(ctx, a.collection, nil, milvusExpr(filter), milvusOutputFields,
		[]entity.Vector{entity.FloatVector(query)}, fieldEmbedding, entity.COSINE, k, sp)
	if err != nil {
		return nil, domain.IndexError("milvus search", err)
	}

	hits := []Hit{}
	for _, res := range results {
		if res.Err != nil {
			return nil, domain.IndexError("milvus search", res.Err)
		}
		for i := 0; i < res.ResultCount; i++ {
			hits = append(hits, Hit{Video: videoFromColumns(res.Fields, i), Score: res.Scores[i]})
		}
	}
	sortHits(hits)
	return hits, nil
}

// Upsert writes entries column-wise and flushes the collection.
func (a *MilvusAdapter) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	n := len(entries)
	str := func() []string { return make([]string, n) }
	num := func() []int64 { return make([]int64, n) }
	var (
		ids, titles, channels, channelKeys  = str(), str(), str(), str()
		categories, categoryKeys            = str(), str()
		countries, countryKeys              = str(), str()
		languages, languageKeys             = str(), str()
		tags, tagKeys, descriptions         = str(), str(), str()
		categoryIDs, views, likes, comments = num(), num(), num(), num()
		published, firstTrend, lastTrend    = num(), num(), num()
		daysTrending, streaks               = num(), num()
		vectors                             = make([][]float32, n)
	)

	for i, e := range entries {
		if err := checkDimension(a.dimension, e.Vector, e.Video.VideoID); err != nil {
			return err
		}
		v := e.Video
		v.TruncateDescription()
		ids[i], titles[i] = v.VideoID, v.Title
		channels[i], channelKeys[i] = v.Channel, strings.ToLower(v.Channel)
		categories[i], categoryKeys[i] = v.Category, strings.ToLower(v.Category)
		countries[i], countryKeys[i] = v.Country, strings.ToLower(v.Country)
		languages[i], languageKeys[i] = v.Language, strings.ToLower(v.Language)
		tags[i], tagKeys[i] = strings.Join(v.Tags, "|"), joinTags(v.Tags)
		descriptions[i] = v.Description
		categoryIDs[i] = int64(v.CategoryID)
		views[i], likes[i], comments[i] = v.Views, v.Likes, v.CommentCount
		published[i], firstTrend[i], lastTrend[i] = unix(v.PublishTime), unix(v.FirstTrendDate), unix(v.LastTrendDate)
		daysTrending[i], streaks[i] = int64(v.DaysTrendingUnique), int64(v.LongestConsecutiveStreakDays)
		vectors[i] = e.Vector
	}

	_, err := a.client.Upsert(ctx, a.collection, "",
		entity.NewColumnVarChar(fieldVideoID, ids),
		entity.NewColumnVarChar(fieldTitle, titles),
		entity.NewColumnVarChar(fieldChannel, channels),
		entity.NewColumnVarChar(fieldChannelKey, channelKeys),
		entity.NewColumnVarChar(fieldCategory, categories),
		entity.NewColumnVarChar(fieldCategoryKey, categoryKeys),
		entity.NewColumnInt64(fieldCategoryID, categoryIDs),
		entity.NewColumnVarChar(fieldCountry, countries),
		entity.NewColumnVarChar(fieldCountryKey, countryKeys),
		entity.NewColumnVarChar(fieldLanguage, languages),
		entity.NewColumnVarChar(fieldLanguageKey, languageKeys),
		entity.NewColumnInt64(fieldViews, views),
		entity.NewColumnInt64(fieldLikes, likes),
		entity.NewColumnInt64(fieldComments, comments),
		entity.NewColumnInt64(fieldPublishTime, published),
		entity.NewColumnInt64(fieldFirstTrend, firstTrend),
		entity.NewColumnInt64(fieldLastTrend, lastTrend),
		entity.NewColumnInt64(fieldDaysTrending, daysTrending),
		entity.NewColumnInt64(fieldStreak, streaks),
		entity.NewColumnVarChar(fieldTags, tags),
		entity.NewColumnVarChar(fieldTagsKey, tagKeys),
		entity.NewColumnVarChar(fieldDescription, descriptions),
		entity.NewColumnFloatVector(fieldEmbedding, a.dimension, vectors),
	)
	if err != nil {
		return domain.IndexError("milvus upsert", err)
	}
	if err := a.client.Flush(ctx, a.collection, false); err != nil {
		return domain.IndexError("milvus flush", err)
	}
	return nil
}

// Get fetches a single record with its embedding.
func (a *MilvusAdapter) Get(ctx context.Context, videoID string) (*Entry, error) {
	fields := append(append([]string(nil), milvusOutputFields...), fieldEmbedding)
	rs, err := a.client.Query(ctx, a.collection, nil,
		fmt.Sprintf("%s == %s", fieldVideoID, quoteExpr(videoID)), fields, client.WithLimit(1))
	if err != nil {
		return nil, domain.IndexError("milvus query", err)
	}

	col := rs.GetColumn(fieldVideoID)
	if col == nil || col.Len() == 0 {
		return nil, ErrNotFound
	}

	entry := &Entry{Video: videoFromColumns(rs, 0)}
	if fv, ok := rs.GetColumn(fieldEmbedding).(*entity.ColumnFloatVector); ok && len(fv.Data()) > 0 {
		entry.Vector = fv.Data()[0]
	}
	return entry, nil
}

// Count returns the collection row count.
func (a *MilvusAdapter) Count(ctx context.Context) (int64, error) {
	stats, err := a.client.GetCollectionStatistics(ctx, a.collection)
	if err != nil {
		return 0, domain.IndexError("milvus statistics", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Facets scans the facet fields of up to milvusQueryLimit records.
func (a *MilvusAdapter) Facets(ctx context.Context) (domain.Statistics, error) {
	total, err := a.Count(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}

	rs, err := a.client.Query(ctx, a.collection, nil, fieldVideoID+` != ""`,
		[]string{fieldCategory, fieldCountry, fieldLanguage}, client.WithLimit(milvusQueryLimit))
	if err != nil {
		return domain.Statistics{}, domain.IndexError("milvus query", err)
	}

	collectField := func(name string) []string {
		set := map[string]struct{}{}
		col := rs.GetColumn(name)
		if col == nil {
			return []string{}
		}
		for i := 0; i < col.Len(); i++ {
			set[stringAt(rs, name, i)] = struct{}{}
		}
		return sortedKeys(set)
	}

	return domain.Statistics{
		TotalDocuments: total,
		Categories:     collectField(fieldCategory),
		Countries:      collectField(fieldCountry),
		Languages:      collectField(fieldLanguage),
	}, nil
}

// Ping checks that the collection is reachable.
func (a *MilvusAdapter) Ping(ctx context.Context) error {
	has, err := a.client.HasCollection(ctx, a.collection)
	if err != nil {
		return domain.IndexError("milvus ping", err)
	}
	if !has {
		return domain.IndexError(fmt.Sprintf("collection %s does not exist", a.collection), nil)
	}
	return nil
}

// Close closes the client connection.
func (a *MilvusAdapter) Close() error {
	return a.client.Close()
}

// milvusExpr renders filter as a Milvus boolean expression; "" means no filter.
func milvusExpr(f *domain.Filter) string {
	f = f.Normalized()
	if f == nil {
		return ""
	}

	var parts []string
	eq := func(field, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s == %s", field, quoteExpr(strings.ToLower(value))))
		}
	}
	between := func(field string, r *domain.Range) {
		if r == nil {
			return
		}
		if r.Min != nil {
			parts = append(parts, fmt.Sprintf("%s >= %d", field, *r.Min))
		}
		if r.Max != nil {
			parts = append(parts, fmt.Sprintf("%s <= %d", field, *r.Max))
		}
	}

	eq(fieldCategoryKey, f.Category)
	if f.CategoryID != nil {
		parts = append(parts, fmt.Sprintf("%s == %d", fieldCategoryID, *f.CategoryID))
	}
	eq(fieldCountryKey, f.Country)
	eq(fieldLanguageKey, f.Language)
	eq(fieldChannelKey, f.Channel)
	between(fieldViews, f.Views)
	between(fieldLikes, f.Likes)
	between(fieldDaysTrending, f.DaysTrending)

	if len(f.Tags) > 0 {
		tagParts := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			tagParts[i] = fmt.Sprintf("%s like %s", fieldTagsKey, quoteExpr("%|"+strings.ToLower(strings.TrimSpace(t))+"|%"))
		}
		parts = append(parts, "("+strings.Join(tagParts, " or ")+")")
	}
	return strings.Join(parts, " and ")
}

func quoteExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func videoFromColumns(rs client.ResultSet, i int) domain.VideoRecord {
	return domain.VideoRecord{
		VideoID:                      stringAt(rs, fieldVideoID, i),
		Title:                        stringAt(rs, fieldTitle, i),
		Channel:                      stringAt(rs, fieldChannel, i),
		Category:                     stringAt(rs, fieldCategory, i),
		CategoryID:                   int(int64At(rs, fieldCategoryID, i)),
		Country:                      stringAt(rs, fieldCountry, i),
		Language:                     stringAt(rs, fieldLanguage, i),
		Views:                        int64At(rs, fieldViews, i),
		Likes:                        int64At(rs, fieldLikes, i),
		CommentCount:                 int64At(rs, fieldComments, i),
		PublishTime:                  fromUnix(int64At(rs, fieldPublishTime, i)),
		FirstTrendDate:               fromUnix(int64At(rs, fieldFirstTrend, i)),
		LastTrendDate:                fromUnix(int64At(rs, fieldLastTrend, i)),
		DaysTrendingUnique:           int(int64At(rs, fieldDaysTrending, i)),
		LongestConsecutiveStreakDays: int(int64At(rs, fieldStreak, i)),
		Tags:                         splitTags(stringAt(rs, fieldTags, i)),
		Description:                  stringAt(rs, fieldDescription, i),
	}
}

func stringAt(rs client.ResultSet, name string, i int) string {
	col := rs.GetColumn(name)
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func int64At(rs client.ResultSet, name string, i int) int64 {
	col := rs.GetColumn(name)
	if col == nil {
		return 0
	}
	v, err := col.Get(i)
	if err != nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

var _ Adapter = (*MilvusAdapter)(nil)
