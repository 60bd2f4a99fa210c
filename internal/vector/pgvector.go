package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// PGVectorConfig holds PGVector adapter configuration.
type PGVectorConfig struct {
	DSN       string
	Table     string
	Dimension int
}

// PGVectorAdapter implements Adapter using PostgreSQL's pgvector extension.
type PGVectorAdapter struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

const pgColumns = `video_id, title, channel, category, category_id, country, language, views, likes,
	comment_count, publish_time, first_trend_date, last_trend_date, days_trending, longest_streak,
	tags, description`

// NewPGVectorAdapter opens a pgx pool and creates the table and HNSW index when missing.
func NewPGVectorAdapter(ctx context.Context, cfg PGVectorConfig) (*PGVectorAdapter, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector adapter requires a DSN")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector adapter requires a positive dimension")
	}
	if cfg.Table == "" {
		cfg.Table = "trending_videos"
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, domain.IndexError("connect to postgres", err)
	}

	a := &PGVectorAdapter{pool: pool, table: pgx.Identifier{cfg.Table}.Sanitize(), dimension: cfg.Dimension}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *PGVectorAdapter) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			video_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			category_id INTEGER NOT NULL DEFAULT 0,
			country TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			views BIGINT NOT NULL DEFAULT 0,
			likes BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			publish_time TIMESTAMPTZ,
			first_trend_date DATE,
			last_trend_date DATE,
			days_trending INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			tags TEXT[] NOT NULL DEFAULT '{}',
			description TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL
		)`, a.table, a.dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
			pgx.Identifier{strings.Trim(a.table, `"`) + "_embedding_idx"}.Sanitize(), a.table),
	}
	for _, stmt := range stmts {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return domain.IndexError("prepare pgvector schema", err)
		}
	}
	return nil
}

// Search orders by cosine distance with the filter applied in the WHERE clause.
func (a *PGVectorAdapter) Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]Hit, error) {
	if err := checkDimension(a.dimension, query, "query"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	where, args := pgWhere(filter, 2)
	sql := fmt.Sprintf(
		`SELECT %s, 1 - (embedding <=> $1) AS score
		 FROM %s%s
		 ORDER BY embedding <=> $1, video_id
		 LIMIT %d`, pgColumns, a.table, where, k,
	)

	rows, err := a.pool.Query(ctx, sql, append([]any{pgvector.NewVector(query)}, args...)...)
	if err != nil {
		return nil, domain.IndexError("pgvector search", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var (
			row   pgRow
			score float64
		)
		if err := rows.Scan(append(row.dest(), &score)...); err != nil {
			return nil, domain.IndexError("scan search result", err)
		}
		hits = append(hits, Hit{Video: row.video(), Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.IndexError("pgvector search", err)
	}
	sortHits(hits)
	return hits, nil
}

// Upsert writes entries in one batch.
func (a *PGVectorAdapter) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`INSERT INTO %s (%s, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title, channel = EXCLUDED.channel, category = EXCLUDED.category,
			category_id = EXCLUDED.category_id, country = EXCLUDED.country, language = EXCLUDED.language,
			views = EXCLUDED.views, likes = EXCLUDED.likes, comment_count = EXCLUDED.comment_count,
			publish_time = EXCLUDED.publish_time, first_trend_date = EXCLUDED.first_trend_date,
			last_trend_date = EXCLUDED.last_trend_date, days_trending = EXCLUDED.days_trending,
			longest_streak = EXCLUDED.longest_streak, tags = EXCLUDED.tags,
			description = EXCLUDED.description, embedding = EXCLUDED.embedding`, a.table, pgColumns)

	batch := &pgx.Batch{}
	for _, e := range entries {
		if err := checkDimension(a.dimension, e.Vector, e.Video.VideoID); err != nil {
			return err
		}
		v := e.Video
		v.TruncateDescription()
		tags := v.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(sql,
			v.VideoID, v.Title, v.Channel, v.Category, v.CategoryID, v.Country, v.Language,
			v.Views, v.Likes, v.CommentCount, nullTime(v.PublishTime), nullTime(v.FirstTrendDate),
			nullTime(v.LastTrendDate), v.DaysTrendingUnique, v.LongestConsecutiveStreakDays,
			tags, v.Description, pgvector.NewVector(e.Vector),
		)
	}

	br := a.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			return domain.IndexError(fmt.Sprintf("upsert %s", e.Video.VideoID), err)
		}
	}
	return nil
}

// Get returns a record and its embedding.
func (a *PGVectorAdapter) Get(ctx context.Context, videoID string) (*Entry, error) {
	var (
		row pgRow
		vec pgvector.Vector
	)
	err := a.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s, embedding FROM %s WHERE video_id = $1", pgColumns, a.table), videoID,
	).Scan(append(row.dest(), &vec)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.IndexError("pgvector get", err)
	}
	return &Entry{Video: row.video(), Vector: vec.Slice()}, nil
}

// Count returns the number of rows.
func (a *PGVectorAdapter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+a.table).Scan(&n); err != nil {
		return 0, domain.IndexError("pgvector count", err)
	}
	return n, nil
}

// Facets aggregates distinct facet values in one query.
func (a *PGVectorAdapter) Facets(ctx context.Context) (domain.Statistics, error) {
	var stats domain.Statistics
	err := a.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*),
		COALESCE(array_agg(DISTINCT category ORDER BY category) FILTER (WHERE category <> ''), '{}'),
		COALESCE(array_agg(DISTINCT country ORDER BY country) FILTER (WHERE country <> ''), '{}'),
		COALESCE(array_agg(DISTINCT language ORDER BY language) FILTER (WHERE language <> ''), '{}')
		FROM %s`, a.table),
	).Scan(&stats.TotalDocuments, &stats.Categories, &stats.Countries, &stats.Languages)
	if err != nil {
		return domain.Statistics{}, domain.IndexError("pgvector facets", err)
	}
	return stats, nil
}

// Ping checks pool connectivity.
func (a *PGVectorAdapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return domain.IndexError("pgvector ping", err)
	}
	return nil
}

// Close closes the pool.
func (a *PGVectorAdapter) Close() error {
	a.pool.Close()
	return nil
}

// pgWhere builds a WHERE clause for filter with placeholders starting at argIdx.
func pgWhere(f *domain.Filter, argIdx int) (string, []any) {
	f = f.Normalized()
	if f == nil {
		return "", nil
	}

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, fmt.Sprintf(cond, argIdx))
		args = append(args, arg)
		argIdx++
	}
	rng := func(col string, r *domain.Range) {
		if r == nil {
			return
		}
		if r.Min != nil {
			add(col+" >= $%d", *r.Min)
		}
		if r.Max != nil {
			add(col+" <= $%d", *r.Max)
		}
	}

	if f.Category != "" {
		add("lower(category) = lower($%d)", f.Category)
	}
	if f.CategoryID != nil {
		add("category_id = $%d", *f.CategoryID)
	}
	if f.Country != "" {
		add("lower(country) = lower($%d)", f.Country)
	}
	if f.Language != "" {
		add("lower(language) = lower($%d)", f.Language)
	}
	if f.Channel != "" {
		add("lower(channel) = lower($%d)", f.Channel)
	}
	rng("views", f.Views)
	rng("likes", f.Likes)
	rng("days_trending", f.DaysTrending)
	if len(f.Tags) > 0 {
		lowered := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			lowered[i] = strings.ToLower(strings.TrimSpace(t))
		}
		add("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE lower(t) = ANY($%d))", lowered)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pgRow holds scan targets matching pgColumns.
type pgRow struct {
	v                    domain.VideoRecord
	publish, first, last *time.Time
}

func (r *pgRow) dest() []any {
	v := &r.v
	return []any{
		&v.VideoID, &v.Title, &v.Channel, &v.Category, &v.CategoryID, &v.Country, &v.Language,
		&v.Views, &v.Likes, &v.CommentCount, &r.publish, &r.first, &r.last,
		&v.DaysTrendingUnique, &v.LongestConsecutiveStreakDays, &v.Tags, &v.Description,
	}
}

func (r *pgRow) video() domain.VideoRecord {
	v := r.v
	if r.publish != nil {
		v.PublishTime = r.publish.UTC()
	}
	if r.first != nil {
		v.FirstTrendDate = r.first.UTC()
	}
	if r.last != nil {
		v.LastTrendDate = r.last.UTC()
	}
	if len(v.Tags) == 0 {
		v.Tags = nil
	}
	return v
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Adapter = (*PGVectorAdapter)(nil)
