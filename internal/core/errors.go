package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the machine-readable code handed to the delivery layer
type ErrorCode string

const (
	CodeAccountNotFound ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeLLMTimeout      ErrorCode = "LLM_TIMEOUT"
	CodeParseError      ErrorCode = "PARSE_ERROR"
	CodeUnknown         ErrorCode = "UNKNOWN"
)

var (
	// ErrNotFound is returned by stores when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrAccountNotFound is returned when the account of a delivery is unknown
	ErrAccountNotFound = errors.New("account not found")
	// ErrLockContention signals that the unit of work is already in progress elsewhere
	ErrLockContention = errors.New("lock held by another worker")
)

// ParseError is returned for structurally invalid messages
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderErrorKind classifies model provider failures
type ProviderErrorKind string

const (
	ProviderInvalidCredentials ProviderErrorKind = "invalid-credentials"
	ProviderRateLimit          ProviderErrorKind = "rate-limit"
	ProviderModelNotFound      ProviderErrorKind = "model-not-found"
	ProviderConnectionFailed   ProviderErrorKind = "connection-failed"
)

// ProviderError wraps a failure reported by a model provider
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the provider failure is transient
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderRateLimit || e.Kind == ProviderConnectionFailed
}

// TimeoutError is returned when a model call exceeds its deadline
type TimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: model call timed out after %s", e.Stage, e.Timeout)
}

// Is lets callers match timeouts with context.DeadlineExceeded
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// JSONContractError is returned when model output misses required fields
type JSONContractError struct {
	Contract string
	Reason   string
	Raw      string
}

func (e *JSONContractError) Error() string {
	return fmt.Sprintf("%s contract violated: %s", e.Contract, e.Reason)
}

// ClusteringError is returned for invalid clustering input
type ClusteringError struct {
	Reason string
}

func (e *ClusteringError) Error() string {
	return "clustering error: " + e.Reason
}

// Retryable reports whether an error belongs to a transient failure class
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var je *JSONContractError
	return errors.As(err, &je)
}

// CodeOf maps an error to its delivery code
func CodeOf(err error) ErrorCode {
	var (
		pe *ParseError
		te *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountNotFound):
		return CodeAccountNotFound
	case errors.As(err, &te):
		return CodeLLMTimeout
	case errors.As(err, &pe):
		return CodeParseError
	default:
		return CodeUnknown
	}
}
