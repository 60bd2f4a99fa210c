package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced in agent results and responses.
type ErrorKind string

const (
	ErrorKindInvalidQuery          ErrorKind = "INVALID_QUERY"
	ErrorKindRouterDegraded        ErrorKind = "ROUTER_DEGRADED"
	ErrorKindTranslationFailed     ErrorKind = "TRANSLATION_FAILED"
	ErrorKindExecutionFailed       ErrorKind = "EXECUTION_FAILED"
	ErrorKindEmbeddingFailed       ErrorKind = "EMBEDDING_FAILED"
	ErrorKindIndexUnavailable      ErrorKind = "INDEX_UNAVAILABLE"
	ErrorKindDependencyUnavailable ErrorKind = "DEPENDENCY_UNAVAILABLE"
	ErrorKindTimeout               ErrorKind = "TIMEOUT"
	ErrorKindAgentInternal         ErrorKind = "AGENT_INTERNAL"
	ErrorKindOverloaded            ErrorKind = "OVERLOADED"
)

// AllErrorKinds lists every kind in declaration order.
var AllErrorKinds = []ErrorKind{
	ErrorKindInvalidQuery,
	ErrorKindRouterDegraded,
	ErrorKindTranslationFailed,
	ErrorKindExecutionFailed,
	ErrorKindEmbeddingFailed,
	ErrorKindIndexUnavailable,
	ErrorKindDependencyUnavailable,
	ErrorKindTimeout,
	ErrorKindAgentInternal,
	ErrorKindOverloaded,
}

// DomainError represents a domain-specific error with context
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func InvalidQueryError(message string, err error) *DomainError {
	return NewError(ErrorKindInvalidQuery, message, err)
}

func TranslationError(message string, err error) *DomainError {
	return NewError(ErrorKindTranslationFailed, message, err)
}

func ExecutionError(message string, err error) *DomainError {
	return NewError(ErrorKindExecutionFailed, message, err)
}

func EmbeddingError(message string, err error) *DomainError {
	return NewError(ErrorKindEmbeddingFailed, message, err)
}

func IndexError(message string, err error) *DomainError {
	return NewError(ErrorKindIndexUnavailable, message, err)
}

func DependencyError(message string, err error) *DomainError {
	return NewError(ErrorKindDependencyUnavailable, message, err)
}

// KindOf extracts the ErrorKind carried by err. Context expiry maps to TIMEOUT and
// anything unclassified maps to fallback.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorKindTimeout
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return fallback
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}

// Remedy returns a short user-facing suggestion for an error kind.
func Remedy(kind ErrorKind) string {
	switch kind {
	case ErrorKindInvalidQuery:
		return "Please enter a non-empty question within the length limit."
	case ErrorKindTranslationFailed:
		return "Try rephrasing the question with explicit metrics such as views, likes or categories."
	case ErrorKindExecutionFailed:
		return "Please retry in a moment."
	case ErrorKindEmbeddingFailed:
		return "Please retry; if the problem persists check the embedding service status."
	case ErrorKindIndexUnavailable:
		return "Please retry later or broaden the query filters."
	case ErrorKindDependencyUnavailable:
		return "Check the service status page and retry."
	case ErrorKindTimeout:
		return "Try a simpler question or allow a longer deadline."
	case ErrorKindOverloaded:
		return "The service is busy; please retry shortly."
	default:
		return "Please retry."
	}
}
