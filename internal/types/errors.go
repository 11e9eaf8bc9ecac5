package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Greenlight engine errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
)

// Session error codes
const (
	SESSION_NOT_FOUND      ErrorCode = "SESSION_NOT_FOUND"
	SESSION_NOT_ACTIVE     ErrorCode = "SESSION_NOT_ACTIVE"
	SESSION_STAGE_ORDER    ErrorCode = "SESSION_STAGE_ORDER"
	SESSION_STAGE_SEALED   ErrorCode = "SESSION_STAGE_SEALED"
	SESSION_ALREADY_CLOSED ErrorCode = "SESSION_ALREADY_CLOSED"
)

// Checkpoint error codes
const (
	CHECKPOINT_NOT_FOUND     ErrorCode = "CHECKPOINT_NOT_FOUND"
	CHECKPOINT_WRITE_FAILED  ErrorCode = "CHECKPOINT_WRITE_FAILED"
	CHECKPOINT_CORRUPT       ErrorCode = "CHECKPOINT_CORRUPT"
	CHECKPOINT_DECODE_FAILED ErrorCode = "CHECKPOINT_DECODE_FAILED"
)

// External service error codes
const (
	EVALUATOR_UNAVAILABLE  ErrorCode = "EVALUATOR_UNAVAILABLE"
	COMPARATOR_UNAVAILABLE ErrorCode = "COMPARATOR_UNAVAILABLE"
	LLM_RESPONSE_MALFORMED ErrorCode = "LLM_RESPONSE_MALFORMED"
	LLM_AUTH_FAILED        ErrorCode = "LLM_AUTH_FAILED"
)

// GreenlightError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints so the
// orchestrator can distinguish transient service failures from caller errors.
type GreenlightError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *GreenlightError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *GreenlightError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a GreenlightError with the same Code.
func (e *GreenlightError) Is(target error) bool {
	var glErr *GreenlightError
	if errors.As(target, &glErr) {
		return e.Code == glErr.Code
	}
	return false
}

// NewError creates a new non-retryable GreenlightError with the given code and message.
func NewError(code ErrorCode, message string) *GreenlightError {
	return &GreenlightError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable GreenlightError with the given code
// and message. Use this for transient errors that may succeed on retry
// (e.g., evaluator timeouts).
func NewRetryableError(code ErrorCode, message string) *GreenlightError {
	return &GreenlightError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable GreenlightError that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *GreenlightError {
	return &GreenlightError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapRetryableError creates a retryable GreenlightError that wraps an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *GreenlightError {
	return &GreenlightError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// HasCode reports whether err carries the given error code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var glErr *GreenlightError
	if errors.As(err, &glErr) {
		return glErr.Code == code
	}
	return false
}

// IsRetryable reports whether err carries a retryable hint anywhere in its chain.
func IsRetryable(err error) bool {
	var glErr *GreenlightError
	if errors.As(err, &glErr) {
		return glErr.Retryable
	}
	return false
}
