package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spherical-ai/trendscope/internal/api/rpc"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/orchestrator"
)

// AnswerRequest is a question with its per-request options.
type AnswerRequest = rpc.AnswerRequest

// Response is the orchestrated answer returned by a server.
type Response = domain.OrchestratedResponse

// HealthReport is the body of GET /health.
type HealthReport = orchestrator.HealthReport

// DefaultBaseURL is where trendscope-api listens by default.
const DefaultBaseURL = "http://localhost:8000"

// Client is the SDK client for a remote trendscope server.
type Client struct {
	baseURL string
	http    *http.Client
	rpc     *rpc.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Zero means no client-side timeout.
	Timeout time.Duration
}

// NewClient creates a client. The Connect service is expected under /rpc.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: base,
		http:    hc,
		rpc:     rpc.NewClient(hc, base+"/rpc"),
	}
}

// Answer asks one question. Agent failures are reported in the response;
// the error is non-nil only for transport failures and admission rejection.
func (c *Client) Answer(ctx context.Context, req AnswerRequest) (*Response, error) {
	return c.rpc.Answer(ctx, req)
}

// Stats returns the filter values present in the semantic index.
func (c *Client) Stats(ctx context.Context) (*domain.Statistics, error) {
	return c.rpc.Stats(ctx)
}

// Health checks the server and its agent dependencies.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health (status %d): %w", resp.StatusCode, err)
	}
	return &report, nil
}
