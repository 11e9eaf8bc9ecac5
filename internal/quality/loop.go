// Package quality implements the per-response quality-assessment retry loop:
// an external evaluator scores each response, and a bounded acceptance policy
// decides accept, retry, or force-accept. The policy is deliberately decoupled
// from the scoring call so it is independently testable.
package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/iffystrayer/greenlight/internal/types"
)

// Evaluator is the external text-evaluation service, treated as a black box
// returning a structured score with issues and suggested follow-ups.
// Implementations must be idempotent and side-effect free; they may fail or
// time out.
type Evaluator interface {
	Evaluate(ctx context.Context, question, response, stageContext string) (*Evaluation, error)
}

// Policy is the bounded-retry acceptance policy for response quality.
type Policy struct {
	// Threshold is the minimum score for ordinary acceptance
	Threshold int

	// MaxAttempts is the attempt count at which a response is force-accepted
	MaxAttempts int
}

// DefaultPolicy returns the standard acceptance policy: accept at score >= 7,
// force-accept on the third attempt.
func DefaultPolicy() Policy {
	return Policy{Threshold: 7, MaxAttempts: 3}
}

// Decide applies the policy to a score and attempt count.
// duress is true when acceptance was forced by the attempt limit rather than
// earned by the score.
func (p Policy) Decide(score, attempt int) (acceptable, duress bool) {
	if score >= p.Threshold {
		return true, false
	}
	if attempt >= p.MaxAttempts {
		return true, true
	}
	return false, false
}

const (
	// neutralScore is recorded when evaluation is skipped because the
	// evaluator was unavailable
	neutralScore = 5

	// evaluatorRetries bounds retries of a failing evaluator call
	evaluatorRetries = 2
)

// Loop evaluates one user response against the quality rubric and applies the
// acceptance policy. It owns no counters; the attempt count is supplied by
// the caller.
type Loop struct {
	evaluator Evaluator
	policy    Policy
}

// NewLoop creates a quality loop over the given evaluator and policy.
func NewLoop(evaluator Evaluator, policy Policy) *Loop {
	return &Loop{
		evaluator: evaluator,
		policy:    policy,
	}
}

// Evaluate scores one response and applies the acceptance policy.
//
// Outcomes:
//   - score >= threshold: accept
//   - score below threshold, attempt >= max: force-accept, flagged duress,
//     true score preserved
//   - otherwise: reject, issues and follow-ups surfaced for re-prompting
//
// If the evaluator fails or returns malformed output, the call is retried
// with bounded backoff; on exhausted retries the response is force-accepted
// with a neutral score and the evaluation-skipped flag set. The interview
// never stalls because the quality oracle is unavailable.
func (l *Loop) Evaluate(ctx context.Context, question, response, stageContext string, attempt int) (*Assessment, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if response == "" {
		return nil, fmt.Errorf("response cannot be empty")
	}
	if attempt < 1 {
		return nil, fmt.Errorf("attempt count must be >= 1, got %d", attempt)
	}

	eval, err := l.evaluateWithRetry(ctx, question, response, stageContext)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("evaluation cancelled: %w", ctx.Err())
		}
		// Evaluator exhausted: degrade gracefully rather than stalling.
		return &Assessment{
			Question:          question,
			Response:          response,
			Score:             neutralScore,
			Acceptable:        true,
			Attempt:           attempt,
			EvaluationSkipped: true,
			Issues:            []string{fmt.Sprintf("quality evaluation unavailable: %v", err)},
		}, nil
	}

	acceptable, duress := l.policy.Decide(eval.Score, attempt)
	return &Assessment{
		Question:            question,
		Response:            response,
		Score:               eval.Score,
		Acceptable:          acceptable,
		Issues:              eval.Issues,
		FollowUps:           eval.FollowUps,
		Attempt:             attempt,
		AcceptedUnderDuress: duress,
	}, nil
}

// evaluateWithRetry calls the evaluator with bounded exponential backoff.
// Malformed output (score outside 0..10) counts as a retryable failure.
func (l *Loop) evaluateWithRetry(ctx context.Context, question, response, stageContext string) (*Evaluation, error) {
	var lastErr error

	for attempt := 0; attempt <= evaluatorRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		eval, err := l.evaluator.Evaluate(ctx, question, response, stageContext)
		if err != nil {
			lastErr = err
			if !types.IsRetryable(err) && ctx.Err() == nil {
				// Non-retryable service errors (auth, bad request) won't
				// heal on retry; bail out to the degraded path directly.
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}

		if eval.Score < 0 || eval.Score > 10 {
			lastErr = types.NewRetryableError(types.LLM_RESPONSE_MALFORMED,
				fmt.Sprintf("evaluator returned score %d outside 0..10", eval.Score))
			continue
		}

		return eval, nil
	}

	return nil, fmt.Errorf("evaluator failed after %d attempts: %w", evaluatorRetries+1, lastErr)
}
