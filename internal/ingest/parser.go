package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/spherical-ai/trendscope/internal/domain"
)

const maxLineBytes = 4 << 20

// record is one JSONL line. Field names follow the relational schema.
type record struct {
	VideoID                      string          `json:"video_id"`
	Title                        string          `json:"title"`
	Description                  string          `json:"description"`
	Tags                         json.RawMessage `json:"tags"`
	CategoryID                   int             `json:"category_id"`
	CategoryName                 string          `json:"category_name"`
	ChannelTitle                 string          `json:"channel_title"`
	Country                      string          `json:"country"`
	Language                     string          `json:"language"`
	PublishTime                  string          `json:"publish_time"`
	FirstTrendDate               string          `json:"first_trend_date"`
	LastTrendDate                string          `json:"last_trend_date"`
	DaysTrendingUnique           int             `json:"days_trending_unique"`
	LongestConsecutiveStreakDays int             `json:"longest_consecutive_streak_days"`
	Views                        int64           `json:"views"`
	Likes                        int64           `json:"likes"`
	CommentCount                 int64           `json:"comment_count"`
}

// Parser decodes JSONL video records, one object per line. Blank lines are
// skipped. Records are taken as given; nothing is cleaned or deduplicated.
type Parser struct {
	scanner *bufio.Scanner
	line    int
	done    bool
}

// NewParser reads records from r.
func NewParser(r io.Reader) *Parser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Parser{scanner: sc}
}

// Next returns the next record, or io.EOF when the input is exhausted.
// Errors name the offending line.
func (p *Parser) Next() (domain.VideoRecord, error) {
	if p.done {
		return domain.VideoRecord{}, io.EOF
	}
	for p.scanner.Scan() {
		p.line++
		line := bytes.TrimSpace(p.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		v, err := decode(line)
		if err != nil {
			return domain.VideoRecord{}, fmt.Errorf("line %d: %w", p.line, err)
		}
		return v, nil
	}
	p.done = true
	if err := p.scanner.Err(); err != nil {
		return domain.VideoRecord{}, fmt.Errorf("line %d: %w", p.line+1, err)
	}
	return domain.VideoRecord{}, io.EOF
}

// ParseAll reads every record. Bad lines are collected rather than stopping
// the read, so the error lists every problem in the input.
func ParseAll(r io.Reader) ([]domain.VideoRecord, error) {
	p := NewParser(r)
	var (
		out  []domain.VideoRecord
		errs *multierror.Error
	)
	for {
		v, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errs.ErrorOrNil()
}

func decode(line []byte) (domain.VideoRecord, error) {
	var r record
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&r); err != nil {
		return domain.VideoRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if strings.TrimSpace(r.VideoID) == "" {
		return domain.VideoRecord{}, errors.New("video_id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return domain.VideoRecord{}, fmt.Errorf("video %s: title is required", r.VideoID)
	}

	tags, err := decodeTags(r.Tags)
	if err != nil {
		return domain.VideoRecord{}, fmt.Errorf("video %s: %w", r.VideoID, err)
	}

	v := domain.VideoRecord{
		VideoID:                      r.VideoID,
		Title:                        r.Title,
		Channel:                      r.ChannelTitle,
		Category:                     r.CategoryName,
		CategoryID:                   r.CategoryID,
		Country:                      r.Country,
		Language:                     r.Language,
		Views:                        r.Views,
		Likes:                        r.Likes,
		CommentCount:                 r.CommentCount,
		DaysTrendingUnique:           r.DaysTrendingUnique,
		LongestConsecutiveStreakDays: r.LongestConsecutiveStreakDays,
		Tags:                         tags,
		Description:                  r.Description,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"publish_time", r.PublishTime, &v.PublishTime},
		{"first_trend_date", r.FirstTrendDate, &v.FirstTrendDate},
		{"last_trend_date", r.LastTrendDate, &v.LastTrendDate},
	} {
		t, err := parseTime(f.raw)
		if err != nil {
			return domain.VideoRecord{}, fmt.Errorf("video %s: %s: %w", r.VideoID, f.name, err)
		}
		*f.dst = t
	}
	v.TruncateDescription()
	v.SearchableText = v.BuildSearchableText()
	return v, nil
}

// decodeTags accepts a JSON array or a pipe-separated string.
func decodeTags(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, errors.New("tags must be an array or a pipe-separated string")
	}
	var out []string
	for _, t := range strings.Split(joined, "|") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
