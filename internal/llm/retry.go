package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v2"

	"github.com/spherical-ai/trendscope/internal/domain"
)

const (
	maxRetries     = 2
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// shouldRetry determines if a status code is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// statusError carries the HTTP status of a failed provider call.
type statusError struct {
	provider string
	status   int
	err      error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %v", e.provider, e.status, e.err)
}

func (e *statusError) Unwrap() error { return e.err }

// wrapProviderError classifies SDK errors as DEPENDENCY_UNAVAILABLE while
// keeping the status code visible to IsTransient.
func wrapProviderError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		err = &statusError{provider: provider, status: oaErr.StatusCode, err: err}
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		err = &statusError{provider: provider, status: anErr.StatusCode, err: err}
	}
	return domain.DependencyError(provider+" request failed", err)
}

// IsTransient reports whether err is worth retrying: retryable HTTP statuses
// and network errors. Context errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return shouldRetry(se.status)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type retryingCompleter struct {
	next Completer
	cfg  *RetryConfig
}

// WithRetry retries transient failures with jittered exponential backoff.
func WithRetry(next Completer, cfg *RetryConfig) Completer {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if cfg.InitialBackoff <= 0 {
		c := *cfg
		c.InitialBackoff = initialBackoff
		cfg = &c
	}
	return &retryingCompleter{next: next, cfg: cfg}
}

func (r *retryingCompleter) Model() string { return r.next.Model() }

func (r *retryingCompleter) Complete(ctx context.Context, req Request) (string, error) {
	var out string
	err := retry.Do(
		func() error {
			text, err := r.next.Complete(ctx, req)
			if err != nil {
				return err
			}
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.cfg.MaxRetries)+1),
		retry.Delay(r.cfg.InitialBackoff),
		retry.MaxDelay(r.cfg.MaxBackoff),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(r.cfg.InitialBackoff),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
