// Package rpc exposes the orchestrator as a Connect service.
package rpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/internal/orchestrator"
)

// Service and procedure names.
const (
	ServiceName     = "trendscope.v1.QueryService"
	AnswerProcedure = "/" + ServiceName + "/Answer"
	StatsProcedure  = "/" + ServiceName + "/Stats"
)

// RequestIDHeader carries the orchestrator request ID on Answer responses.
const RequestIDHeader = "Trendscope-Request-Id"

// AnswerRequest is the question and its per-request options. The HTTP adapter
// decodes the same shape from POST /query.
type AnswerRequest struct {
	Query           string   `json:"query"`
	MaxResults      int      `json:"max_results,omitempty"`
	MinScore        *float64 `json:"min_score,omitempty"`
	DeadlineMs      *int64   `json:"deadline_ms,omitempty"`
	IncludeMetadata bool     `json:"include_metadata,omitempty"`
}

// Options converts the request into orchestrator options.
func (r AnswerRequest) Options() orchestrator.Options {
	opts := orchestrator.Options{MaxResults: r.MaxResults, IncludeMetadata: r.IncludeMetadata}
	if r.MinScore != nil {
		opts = opts.WithMinScore(*r.MinScore)
	}
	if r.DeadlineMs != nil {
		opts = opts.WithDeadline(time.Duration(*r.DeadlineMs) * time.Millisecond)
	}
	return opts
}

// StatsRequest has no fields.
type StatsRequest struct{}

// Answerer is implemented by *orchestrator.Orchestrator.
type Answerer interface {
	Answer(ctx context.Context, query string, opts orchestrator.Options) *domain.OrchestratedResponse
}

// StatsSource is implemented by the semantic agent.
type StatsSource interface {
	Statistics(ctx context.Context) (domain.Statistics, error)
}

// QueryService implements trendscope.v1.QueryService.
type QueryService struct {
	logger   *observability.Logger
	answerer Answerer
	stats    StatsSource
}

// NewQueryService creates the service. stats may be nil when semantic search is disabled.
func NewQueryService(logger *observability.Logger, answerer Answerer, stats StatsSource) *QueryService {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &QueryService{logger: logger, answerer: answerer, stats: stats}
}

// Answer runs one question. Agent failures are reported in the response
// body; only admission rejection becomes a Connect error.
func (s *QueryService) Answer(ctx context.Context, req *connect.Request[AnswerRequest]) (*connect.Response[domain.OrchestratedResponse], error) {
	resp := s.answerer.Answer(ctx, req.Msg.Query, req.Msg.Options())
	if resp.State == domain.StateRejected && resp.ErrorKind == domain.ErrorKindOverloaded {
		return nil, connect.NewError(connect.CodeResourceExhausted, errors.New(resp.ErrorMessage))
	}

	out := connect.NewResponse(resp)
	out.Header().Set(RequestIDHeader, resp.RequestID)
	return out, nil
}

// Stats returns the filter values present in the semantic index.
func (s *QueryService) Stats(ctx context.Context, _ *connect.Request[StatsRequest]) (*connect.Response[domain.Statistics], error) {
	if s.stats == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("semantic agent is disabled"))
	}
	stats, err := s.stats.Statistics(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error().Err(err).Msg("Failed to read index statistics")
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("vector index unavailable"))
	}
	return connect.NewResponse(&stats), nil
}

// NewHandler returns the path prefix and handler serving svc.
func NewHandler(svc *QueryService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(AnswerProcedure, connect.NewUnaryHandler(AnswerProcedure, svc.Answer, opts...))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, svc.Stats, opts...))
	return "/" + ServiceName + "/", mux
}

// LoggingInterceptor logs every unary call with its outcome.
func LoggingInterceptor(logger *observability.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			event := logger.WithContext(ctx).Info()
			if err != nil {
				event = logger.WithContext(ctx).Warn().Str("code", connect.CodeOf(err).String())
			}
			event.
				Str("procedure", req.Spec().Procedure).
				Dur("duration", time.Since(start)).
				Msg("RPC handled")
			return res, err
		}
	}
}
