package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/spherical-ai/trendscope/internal/api/rpc"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
)

// maxBodyBytes bounds POST /query bodies; the query itself is capped far lower.
const maxBodyBytes = 64 << 10

// QueryHandler serves POST /query.
type QueryHandler struct {
	logger   *observability.Logger
	answerer rpc.Answerer
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(logger *observability.Logger, answerer rpc.Answerer) *QueryHandler {
	return &QueryHandler{logger: logger, answerer: answerer}
}

// Query answers one question. Agent failures are reported in a 200 body;
// only an undecodable body (400) and admission rejection (503) change the status.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req rpc.AnswerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	resp := h.answerer.Answer(r.Context(), req.Query, req.Options())

	status := http.StatusOK
	if resp.State == domain.StateRejected && resp.ErrorKind == domain.ErrorKindOverloaded {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set(rpc.RequestIDHeader, resp.RequestID)
	writeJSON(h.logger, w, status, resp)
}
