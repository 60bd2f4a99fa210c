// Package llm provides chat-completion providers behind a single Completer interface.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Purpose names the call site of a completion. Providers ignore it; it
// shows up in logs and lets scripted completers answer per call site.
type Purpose string

const (
	PurposeRoute      Purpose = "route"
	PurposeTranslate  Purpose = "translate"
	PurposeParaphrase Purpose = "paraphrase"
	PurposeSummarize  Purpose = "summarize"
	PurposeCombine    Purpose = "combine"
)

// Request is a single-turn completion request.
type Request struct {
	Purpose   Purpose
	System    string
	User      string
	MaxTokens int
}

// Completer issues completions. Implementations must be safe for concurrent use
// and honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       *RetryConfig
}

// New builds the Completer named by cfg.Provider wrapped with retry.
func New(cfg Config) (Completer, error) {
	var c Completer
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		c = NewOpenAIClient(cfg)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires LLM_API_KEY")
		}
		c = NewAnthropicClient(cfg)
	case "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return WithRetry(c, retry), nil
}

// Disabled fails every call; the router and agents fall back to their
// deterministic paths.
type Disabled struct{}

func (Disabled) Complete(ctx context.Context, req Request) (string, error) {
	return "", domain.DependencyError("llm provider disabled", nil)
}

func (Disabled) Model() string { return "none" }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func maxTokens(req Request, cfg Config) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	if cfg.MaxTokens > 0 {
		return int64(cfg.MaxTokens)
	}
	return 1024
}
