// Package semantic answers topical questions by nearest-neighbour search over
// embedded video records.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/embedding"
	"github.com/spherical-ai/trendscope/internal/llm"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/vector"
)

const noMatches = "No matching videos found"

// Columns are the row keys produced for every hit, in display order.
var Columns = []string{
	"video_id", "title", "channel_title", "category_name", "country", "language",
	"views", "likes", "comment_count", "days_trending_unique", "score",
}

var metadataColumns = []string{"tags", "description", "publish_time"}

// Config holds semantic agent settings.
type Config struct {
	DefaultLimit    int
	MaxLimit        int
	DefaultMinScore float64
	// SearchAttempts is the total number of index calls, including retries.
	SearchAttempts uint
	RetryDelay     time.Duration
	MaxTokens      int
	// SummaryRows bounds the hits listed in answer text.
	SummaryRows int
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    10,
		MaxLimit:        100,
		DefaultMinScore: 0.3,
		SearchAttempts:  3,
		RetryDelay:      100 * time.Millisecond,
		MaxTokens:       768,
		SummaryRows:     5,
	}
}

// Agent is the semantic agent.
type Agent struct {
	logger    *observability.Logger
	embedder  embedding.Embedder
	index     vector.Adapter
	completer llm.Completer
	config    Config
}

var _ domain.Agent = (*Agent)(nil)

// New creates a semantic agent. With a nil completer answers use the template summary.
func New(
	logger *observability.Logger,
	embedder embedding.Embedder,
	index vector.Adapter,
	completer llm.Completer,
	cfg Config,
) *Agent {
	defaults := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if cfg.DefaultMinScore <= 0 || cfg.DefaultMinScore > 1 {
		cfg.DefaultMinScore = defaults.DefaultMinScore
	}
	if cfg.SearchAttempts == 0 {
		cfg.SearchAttempts = defaults.SearchAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.SummaryRows <= 0 {
		cfg.SummaryRows = defaults.SummaryRows
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Agent{
		logger:    logger.WithAgent("semantic"),
		embedder:  embedder,
		index:     index,
		completer: completer,
		config:    cfg,
	}
}

func (a *Agent) Source() domain.Source { return domain.SourceSemantic }

func (a *Agent) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Name:        "Semantic Search Agent",
		Source:      domain.SourceSemantic,
		Description: "Finds videos by content similarity across titles, descriptions and tags",
		Capabilities: []string{
			"Semantic similarity search",
			"Content-based recommendations",
			"Find videos similar to a topic",
			"Metadata filters pushed down to the index",
		},
		BestFor: []string{
			"Find videos about [topic]",
			"Videos similar to [description]",
			"Content related to [concept]",
			"Exploratory searches",
		},
	}
}

func (a *Agent) Ping(ctx context.Context) error {
	if a.embedder == nil || a.index == nil {
		return domain.DependencyError("semantic index not configured", nil)
	}
	if err := a.index.Ping(ctx); err != nil {
		return domain.DependencyError("vector index unreachable", err)
	}
	return nil
}

// Run embeds the task query, searches the index and summarizes the hits.
func (a *Agent) Run(ctx context.Context, task domain.Task) domain.AgentResult {
	start := time.Now()
	res := a.run(ctx, task)
	res.LatencyMs = time.Since(start).Milliseconds()
	res.Diagnostics["latency_ms"] = strconv.FormatInt(res.LatencyMs, 10)
	if f := task.Filter.Normalized(); f != nil {
		res.Diagnostics["filters"] = f.String()
	}
	return res
}

func (a *Agent) run(ctx context.Context, task domain.Task) domain.AgentResult {
	src := domain.SourceSemantic
	logger := a.logger.WithContext(ctx)

	if err := task.Filter.Validate(); err != nil {
		res := domain.FailureResult(src, domain.ErrorKindIndexUnavailable, "invalid filter: "+err.Error())
		res.Diagnostics["validation_error"] = err.Error()
		return res
	}
	if a.embedder == nil || a.index == nil {
		return domain.FailureResult(src, domain.ErrorKindIndexUnavailable, "semantic index not configured")
	}

	limit := a.limit(task.Limit)
	minScore := a.minScore(task.MinScore)

	vec, err := a.embedder.EmbedSingle(ctx, task.Query)
	if err != nil {
		logger.Warn().Err(err).Msg("Query embedding failed")
		return domain.FailureFromError(src, domain.EmbeddingError("could not embed query", err), domain.ErrorKindEmbeddingFailed)
	}

	hits, attempts, err := a.search(ctx, vec, limit, task.Filter)
	if err != nil {
		logger.Warn().Err(err).Int("attempts", attempts).Msg("Vector search failed")
		res := domain.FailureFromError(src, domain.IndexError("vector index unavailable", err), domain.ErrorKindIndexUnavailable)
		res.Diagnostics["attempts"] = strconv.Itoa(attempts)
		return res
	}

	hits = rank(hits, minScore, limit)
	rows := toRows(hits, task.IncludeMetadata)

	res := domain.SuccessResult(src, noMatches, rows)
	res.Columns = columns(task.IncludeMetadata)
	res.Diagnostics["attempts"] = strconv.Itoa(attempts)
	res.Diagnostics["row_count"] = strconv.Itoa(len(rows))
	res.Diagnostics["min_score"] = strconv.FormatFloat(minScore, 'f', -1, 64)
	res.Diagnostics["limit"] = strconv.Itoa(limit)

	if len(hits) > 0 {
		answer, how := a.summarize(ctx, task.Query, hits)
		res.AnswerText = answer
		res.Diagnostics["summary"] = how
	}

	logger.Debug().Int("hits", len(hits)).Float64("min_score", minScore).Msg("Semantic search answered")
	return res
}

func (a *Agent) limit(n int) int {
	switch {
	case n <= 0:
		return a.config.DefaultLimit
	case n > a.config.MaxLimit:
		return a.config.MaxLimit
	default:
		return n
	}
}

func (a *Agent) minScore(s float64) float64 {
	if s < 0 || s > 1 || math.IsNaN(s) {
		return a.config.DefaultMinScore
	}
	return s
}

// search queries the index, retrying failures other than cancellation and
// dimension mismatches.
func (a *Agent) search(ctx context.Context, vec []float32, k int, filter *domain.Filter) ([]vector.Hit, int, error) {
	var hits []vector.Hit
	attempts := 0
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(a.config.SearchAttempts),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	}
	if d := a.config.RetryDelay; d > 0 {
		opts = append(opts,
			retry.Delay(d),
			retry.MaxJitter(d),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		)
	} else {
		opts = append(opts, retry.Delay(0), retry.DelayType(retry.FixedDelay))
	}

	err := retry.Do(
		func() error {
			attempts++
			h, err := a.index.Search(ctx, vec, k, filter)
			if err != nil {
				return err
			}
			hits = h
			return nil
		},
		opts...,
	)
	return hits, attempts, err
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, vector.ErrDimensionMismatch)
}

// rank drops hits under minScore and orders by score descending, then video ID.
func rank(hits []vector.Hit, minScore float64, limit int) []vector.Hit {
	out := make([]vector.Hit, 0, len(hits))
	for _, h := range hits {
		if float64(h.Score) >= minScore {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Video.VideoID < out[j].Video.VideoID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func columns(withMetadata bool) []string {
	cols := append([]string(nil), Columns...)
	if withMetadata {
		cols = append(cols, metadataColumns...)
	}
	return cols
}

func toRows(hits []vector.Hit, withMetadata bool) []domain.Row {
	rows := make([]domain.Row, 0, len(hits))
	for _, h := range hits {
		v := h.Video
		row := domain.Row{
			"video_id":             v.VideoID,
			"title":                v.Title,
			"channel_title":        v.Channel,
			"category_name":        v.Category,
			"country":              v.Country,
			"language":             v.Language,
			"views":                v.Views,
			"likes":                v.Likes,
			"comment_count":        v.CommentCount,
			"days_trending_unique": int64(v.DaysTrendingUnique),
			"score":                rowScore(h.Score),
		}
		if withMetadata {
			row["tags"] = strings.Join(v.Tags, ", ")
			row["description"] = v.Description
			if !v.PublishTime.IsZero() {
				row["publish_time"] = v.PublishTime.UTC().Format(time.RFC3339)
			} else {
				row["publish_time"] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// rowScore rounds to four places and clamps into [0,1].
func rowScore(score float32) float64 {
	return math.Min(1, math.Max(0, math.Round(float64(score)*1e4)/1e4))
}

// FindSimilar returns videos nearest to the stored vector of videoID, excluding
// the video itself.
func (a *Agent) FindSimilar(ctx context.Context, videoID string, limit int) ([]domain.Row, error) {
	if a.index == nil {
		return nil, domain.IndexError("semantic index not configured", nil)
	}
	limit = a.limit(limit)

	seed, err := a.index.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, vector.ErrNotFound) {
			return nil, domain.InvalidQueryError(fmt.Sprintf("video %s is not indexed", videoID), err)
		}
		return nil, domain.IndexError("vector index unavailable", err)
	}

	hits, _, err := a.search(ctx, seed.Vector, limit+1, nil)
	if err != nil {
		return nil, domain.IndexError("vector index unavailable", err)
	}
	filtered := hits[:0]
	for _, h := range hits {
		if h.Video.VideoID != videoID {
			filtered = append(filtered, h)
		}
	}
	return toRows(rank(filtered, -1, limit), false), nil
}

// Statistics reports the index size and the distinct filter values it holds.
func (a *Agent) Statistics(ctx context.Context) (domain.Statistics, error) {
	if a.index == nil {
		return domain.Statistics{}, domain.IndexError("semantic index not configured", nil)
	}
	stats, err := a.index.Facets(ctx)
	if err != nil {
		return domain.Statistics{}, domain.IndexError("vector index unavailable", err)
	}
	sort.Strings(stats.Categories)
	sort.Strings(stats.Countries)
	sort.Strings(stats.Languages)
	return stats, nil
}
