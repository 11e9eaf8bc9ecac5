package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iffystrayer/greenlight/internal/types"
)

// NewAuthError creates a non-retryable authentication error for a provider.
func NewAuthError(provider string, cause error) error {
	return types.WrapError(types.LLM_AUTH_FAILED,
		fmt.Sprintf("%s: missing or invalid credentials", provider), cause)
}

// TranslateError converts a raw provider error into a GreenlightError with an
// appropriate retryability hint. Timeouts, rate limits, and 5xx-class
// failures are retryable; authentication and bad-request failures are not.
func TranslateError(provider string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.WrapRetryableError(types.EVALUATOR_UNAVAILABLE,
			fmt.Sprintf("%s: request timed out", provider), err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return NewAuthError(provider, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "overloaded"):
		return types.WrapRetryableError(types.EVALUATOR_UNAVAILABLE,
			fmt.Sprintf("%s: rate limited", provider), err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused"):
		return types.WrapRetryableError(types.EVALUATOR_UNAVAILABLE,
			fmt.Sprintf("%s: service unavailable", provider), err)
	default:
		return types.WrapRetryableError(types.EVALUATOR_UNAVAILABLE,
			fmt.Sprintf("%s: completion failed", provider), err)
	}
}
