package handlers

import (
	"context"
	"net/http"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/orchestrator"
	"github.com/spherical-ai/trendscope/internal/router"
)

// SystemReporter is implemented by *orchestrator.Orchestrator.
type SystemReporter interface {
	Health(ctx context.Context) orchestrator.HealthReport
	Capabilities() []domain.Capabilities
}

// SystemHandler serves health, examples and system information.
type SystemHandler struct {
	logger   *observability.Logger
	reporter SystemReporter
	summary  map[string]interface{}
}

// NewSystemHandler creates a system handler. summary is the secret-free
// configuration shown by /system/info.
func NewSystemHandler(logger *observability.Logger, reporter SystemReporter, summary map[string]interface{}) *SystemHandler {
	return &SystemHandler{logger: logger, reporter: reporter, summary: summary}
}

// Health handles GET /health. An unhealthy instance answers 503.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.Health(r.Context())
	status := http.StatusOK
	if report.Status == orchestrator.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(h.logger, w, status, report)
}

// Examples handles GET /examples.
func (h *SystemHandler) Examples(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, router.Examples())
}

// SystemInfoResponse is the body of GET /system/info.
type SystemInfoResponse struct {
	Orchestrator  string                 `json:"orchestrator"`
	Agents        []domain.Capabilities  `json:"agents"`
	Configuration map[string]interface{} `json:"configuration"`
}

// Info handles GET /system/info.
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, SystemInfoResponse{
		Orchestrator:  "trendscope multi-agent orchestrator",
		Agents:        h.reporter.Capabilities(),
		Configuration: h.summary,
	})
}
