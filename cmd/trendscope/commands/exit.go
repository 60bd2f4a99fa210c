package commands

import (
	"context"
	"errors"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitValidation  = 1
	ExitDependency  = 2
	ExitInterrupted = 3
)

// ExitError carries an exit code. A nil Err means the failure was already
// reported to the user.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitf(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps the error returned by Execute to a process exit code. Any
// failure after ctx was canceled counts as an interruption.
func ExitCode(ctx context.Context, err error) int {
	if err == nil {
		return ExitOK
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	switch domain.KindOf(err, "") {
	case domain.ErrorKindDependencyUnavailable, domain.ErrorKindIndexUnavailable, domain.ErrorKindOverloaded:
		return ExitDependency
	default:
		return ExitValidation
	}
}

// responseError converts a terminal response state into an exit status.
func responseError(resp *domain.OrchestratedResponse) error {
	switch {
	case resp.State == domain.StateDone, resp.State == domain.StatePartial:
		return nil
	case resp.ErrorKind == domain.ErrorKindOverloaded:
		return exitf(ExitDependency, nil)
	default:
		return exitf(ExitValidation, nil)
	}
}
