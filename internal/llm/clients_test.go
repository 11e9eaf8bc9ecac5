package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/types"
)

// stubProvider returns a canned completion and records the last request.
type stubProvider struct {
	content string
	err     error
	lastReq CompletionRequest
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &CompletionResponse{Content: p.content}, nil
}

func TestQualityEvaluator(t *testing.T) {
	t.Run("parses a scored verdict", func(t *testing.T) {
		p := &stubProvider{content: "```json\n" +
			`{"score": 4, "issues": ["no numbers"], "follow_up_questions": ["how many users?"]}` +
			"\n```"}
		e := NewQualityEvaluator(p, time.Second)

		eval, err := e.Evaluate(context.Background(), "What problem?", "stuff is slow", "problem framing")
		require.NoError(t, err)
		assert.Equal(t, 4, eval.Score)
		assert.Equal(t, []string{"no numbers"}, eval.Issues)
		assert.Equal(t, []string{"how many users?"}, eval.FollowUps)

		// Structured scoring uses deterministic sampling.
		assert.Zero(t, p.lastReq.Temperature)
		assert.Contains(t, p.lastReq.Prompt, "What problem?")
		assert.Contains(t, p.lastReq.Prompt, "problem framing")
	})

	t.Run("non-json response is retryable", func(t *testing.T) {
		p := &stubProvider{content: "sure, that looks fine to me"}
		e := NewQualityEvaluator(p, time.Second)

		_, err := e.Evaluate(context.Background(), "q", "r", "ctx")
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.LLM_RESPONSE_MALFORMED))
		assert.True(t, types.IsRetryable(err))
	})

	t.Run("provider error propagates", func(t *testing.T) {
		p := &stubProvider{err: errors.New("connection refused")}
		e := NewQualityEvaluator(p, time.Second)

		_, err := e.Evaluate(context.Background(), "q", "r", "ctx")
		assert.Error(t, err)
	})
}

func TestStageComparator(t *testing.T) {
	pair := consistency.DefaultPairs()[0]

	t.Run("parses a comparison verdict", func(t *testing.T) {
		p := &stubProvider{content: `{"contradictory": true, "severity": "high", "description": "metric ignores the objective", "confidence": 0.92}`}
		c := NewStageComparator(p, time.Second)

		cmp, err := c.Compare(context.Background(), pair, "reduce churn", "new signups per week")
		require.NoError(t, err)
		assert.True(t, cmp.Contradictory)
		assert.Equal(t, consistency.SeverityHigh, cmp.Severity)
		assert.InDelta(t, 0.92, cmp.Confidence, 0.001)

		assert.Contains(t, p.lastReq.Prompt, pair.Intent)
		assert.Contains(t, p.lastReq.Prompt, "reduce churn")
		assert.Contains(t, p.lastReq.Prompt, "new signups per week")
	})

	t.Run("malformed response is retryable", func(t *testing.T) {
		p := &stubProvider{content: "they seem consistent to me"}
		c := NewStageComparator(p, time.Second)

		_, err := c.Compare(context.Background(), pair, "a", "b")
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.LLM_RESPONSE_MALFORMED))
	})
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"auth", errors.New("401 unauthorized"), types.LLM_AUTH_FAILED, false},
		{"invalid key", errors.New("invalid api key provided"), types.LLM_AUTH_FAILED, false},
		{"rate limit", errors.New("429 rate limit exceeded"), types.EVALUATOR_UNAVAILABLE, true},
		{"server error", errors.New("502 bad gateway"), types.EVALUATOR_UNAVAILABLE, true},
		{"timeout", context.DeadlineExceeded, types.EVALUATOR_UNAVAILABLE, true},
		{"unknown", errors.New("something odd"), types.EVALUATOR_UNAVAILABLE, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TranslateError("stub", tt.err)
			assert.True(t, types.HasCode(err, tt.wantCode))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}

	assert.NoError(t, TranslateError("stub", nil))
}
