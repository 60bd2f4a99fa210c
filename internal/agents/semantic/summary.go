package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/llm"
	"github.com/spherical-ai/trendscope/internal/vector"
)

const summarySystem = `You are a YouTube trends analyst. Using only the search results provided,
answer the user's question in one or two short paragraphs. Highlight the most relevant videos
by title and channel and mention notable patterns. Never invent videos or numbers.`

// Summarize renders the template summary for hits: a count line followed by
// at most max numbered entries.
func Summarize(hits []vector.Hit, max int) string {
	if len(hits) == 0 {
		return noMatches
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant %s:", len(hits), plural(len(hits)))
	for i, h := range hits {
		if i >= max {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s by %s (score %.2f, %s views)",
			i+1, h.Video.Title, h.Video.Channel, h.Score, domain.FormatCount(h.Video.Views))
	}
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return "video"
	}
	return "videos"
}

func summaryUser(query string, hits []vector.Hit, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\nSearch results:\n", query)
	for i, h := range hits {
		if i >= max {
			break
		}
		v := h.Video
		fmt.Fprintf(&b, "%d. Title: %s\n   Channel: %s\n   Category: %s\n   Views: %s\n   Likes: %s\n   Similarity: %.2f\n",
			i+1, v.Title, v.Channel, v.Category, domain.FormatCount(v.Views), domain.FormatCount(v.Likes), h.Score)
	}
	return b.String()
}

// summarize prefers an LLM answer and falls back to the template.
func (a *Agent) summarize(ctx context.Context, query string, hits []vector.Hit) (string, string) {
	if a.completer == nil {
		return Summarize(hits, a.config.SummaryRows), "template"
	}
	text, err := a.completer.Complete(ctx, llm.Request{
		Purpose:   llm.PurposeSummarize,
		System:    summarySystem,
		User:      summaryUser(query, hits, a.config.SummaryRows),
		MaxTokens: a.config.MaxTokens,
	})
	if text = strings.TrimSpace(text); err == nil && text != "" {
		return text, "llm"
	}
	if err != nil {
		a.logger.WithContext(ctx).Debug().Err(err).Msg("Summary unavailable, using template")
	}
	return Summarize(hits, a.config.SummaryRows), "template"
}
