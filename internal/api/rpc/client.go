package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Client calls a remote QueryService.
type Client struct {
	answer *connect.Client[AnswerRequest, domain.OrchestratedResponse]
	stats  *connect.Client[StatsRequest, domain.Statistics]
}

// NewClient creates a client for the service mounted at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		answer: connect.NewClient[AnswerRequest, domain.OrchestratedResponse](httpClient, baseURL+AnswerProcedure, opts...),
		stats:  connect.NewClient[StatsRequest, domain.Statistics](httpClient, baseURL+StatsProcedure, opts...),
	}
}

// Answer asks one question.
func (c *Client) Answer(ctx context.Context, req AnswerRequest) (*domain.OrchestratedResponse, error) {
	res, err := c.answer.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Stats fetches the semantic index statistics.
func (c *Client) Stats(ctx context.Context) (*domain.Statistics, error) {
	res, err := c.stats.CallUnary(ctx, connect.NewRequest(&StatsRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
