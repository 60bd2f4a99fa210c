package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// AnthropicClient wraps the Anthropic Messages API.
type AnthropicClient struct {
	inner anthropic.Client
	model anthropic.Model
	cfg   Config
}

// NewAnthropicClient creates a client for the configured model.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "openai.com") {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &AnthropicClient{
		inner: anthropic.NewClient(opts...),
		model: model,
		cfg:   cfg,
	}
}

func (c *AnthropicClient) Model() string { return string(c.model) }

// Complete makes a single call without tools and concatenates text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens(req, c.cfg),
		Temperature: anthropic.Float(c.cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", wrapProviderError("anthropic", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", domain.DependencyError("anthropic returned empty content", nil)
	}
	return text, nil
}
