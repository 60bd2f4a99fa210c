package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
)

// VideoSearcher is implemented by the semantic agent.
type VideoSearcher interface {
	FindSimilar(ctx context.Context, videoID string, limit int) ([]domain.Row, error)
	Statistics(ctx context.Context) (domain.Statistics, error)
}

// VideoHandler serves index statistics and similar-video lookups.
type VideoHandler struct {
	logger   *observability.Logger
	searcher VideoSearcher
}

// NewVideoHandler creates a video handler. searcher is nil when semantic search is disabled.
func NewVideoHandler(logger *observability.Logger, searcher VideoSearcher) *VideoHandler {
	return &VideoHandler{logger: logger, searcher: searcher}
}

// SimilarResponse is the body of GET /videos/{videoId}/similar.
type SimilarResponse struct {
	VideoID string       `json:"video_id"`
	Results []domain.Row `json:"results"`
}

// Stats handles GET /stats.
func (h *VideoHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "semantic agent is disabled", "")
		return
	}
	stats, err := h.searcher.Statistics(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to read index statistics")
		writeError(h.logger, w, http.StatusServiceUnavailable, "vector index unavailable", "")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, stats)
}

// Similar handles GET /videos/{videoId}/similar?limit=N.
func (h *VideoHandler) Similar(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "semantic agent is disabled", "")
		return
	}
	videoID := chi.URLParam(r, "videoId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(h.logger, w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = n
	}

	rows, err := h.searcher.FindSimilar(r.Context(), videoID, limit)
	switch {
	case domain.IsKind(err, domain.ErrorKindInvalidQuery):
		writeError(h.logger, w, http.StatusNotFound, "video not indexed", videoID)
		return
	case err != nil:
		h.logger.WithContext(r.Context()).Error().Err(err).Str("video_id", videoID).Msg("Similar lookup failed")
		writeError(h.logger, w, http.StatusServiceUnavailable, "vector index unavailable", "")
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	writeJSON(h.logger, w, http.StatusOK, SimilarResponse{VideoID: videoID, Results: rows})
}
