package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/trendscope/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	tagSep     = "|"
)

// VideoRepository reads and writes rows of the videos table.
type VideoRepository struct {
	store *Store
}

// NewVideoRepository creates a repository over store.
func NewVideoRepository(store *Store) *VideoRepository {
	return &VideoRepository{store: store}
}

// EnsureSchema creates the videos table and its indexes when missing.
func (r *VideoRepository) EnsureSchema(ctx context.Context) error {
	if r.store.readOnly {
		return ErrReadOnly
	}
	if _, err := r.store.db.ExecContext(ctx, CreateTableSQL(r.store.driver, r.store.table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	for _, stmt := range IndexSQL(r.store.table) {
		if _, err := r.store.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Upsert writes videos in a single transaction, replacing rows with the same video_id.
// It returns the number of rows written.
func (r *VideoRepository) Upsert(ctx context.Context, videos []domain.VideoRecord) (int, error) {
	if r.store.readOnly {
		return 0, ErrReadOnly
	}
	if len(videos) == 0 {
		return 0, nil
	}

	cols := ColumnNames()
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "video_id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (video_id) DO UPDATE SET %s",
		r.store.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range videos {
		v.TruncateDescription()
		if _, err := stmt.ExecContext(ctx,
			v.VideoID, v.Title, v.Description, strings.Join(v.Tags, tagSep),
			v.CategoryID, v.Category, v.Channel, v.Country, v.Language,
			formatTime(v.PublishTime, time.RFC3339), formatTime(v.FirstTrendDate, dateLayout),
			formatTime(v.LastTrendDate, dateLayout),
			v.DaysTrendingUnique, v.LongestConsecutiveStreakDays,
			v.Views, v.Likes, v.CommentCount,
		); err != nil {
			return 0, fmt.Errorf("upsert video %s: %w", v.VideoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(videos), nil
}

const selectVideoColumns = `video_id, title, COALESCE(description, ''), COALESCE(tags, ''), COALESCE(category_id, 0),
	COALESCE(category_name, ''), COALESCE(channel_title, ''), COALESCE(country, ''), COALESCE(language, ''),
	CAST(publish_time AS TEXT), CAST(first_trend_date AS TEXT), CAST(last_trend_date AS TEXT),
	COALESCE(days_trending_unique, 0), COALESCE(longest_consecutive_streak_days, 0),
	COALESCE(views, 0), COALESCE(likes, 0), COALESCE(comment_count, 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*domain.VideoRecord, error) {
	var (
		v                    domain.VideoRecord
		tags                 string
		publish, first, last sql.NullString
	)
	if err := row.Scan(
		&v.VideoID, &v.Title, &v.Description, &tags, &v.CategoryID,
		&v.Category, &v.Channel, &v.Country, &v.Language,
		&publish, &first, &last,
		&v.DaysTrendingUnique, &v.LongestConsecutiveStreakDays,
		&v.Views, &v.Likes, &v.CommentCount,
	); err != nil {
		return nil, err
	}

	if tags != "" {
		v.Tags = strings.Split(tags, tagSep)
	}
	v.PublishTime = parseTime(publish.String)
	v.FirstTrendDate = parseTime(first.String)
	v.LastTrendDate = parseTime(last.String)
	return &v, nil
}

// GetByID retrieves a video by ID.
func (r *VideoRepository) GetByID(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE video_id = $1", selectVideoColumns, r.store.table)
	v, err := scanVideo(r.store.db.QueryRowContext(ctx, query, videoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// Each streams every video in video_id order to fn, stopping at the first error.
func (r *VideoRepository) Each(ctx context.Context, fn func(domain.VideoRecord) error) error {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY video_id", selectVideoColumns, r.store.table)
	rows, err := r.store.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return fmt.Errorf("scan video: %w", err)
		}
		if err := fn(*v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of rows in the videos table.
func (r *VideoRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.store.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", r.store.table)).Scan(&n)
	return n, err
}

func formatTime(t time.Time, layout string) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(layout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05-07", "2006-01-02 15:04:05-07:00", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
