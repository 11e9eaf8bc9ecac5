package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iffystrayer/greenlight/internal/types"
)

// scriptedEvaluator returns queued evaluations (or errors) in order, then
// repeats the last entry.
type scriptedEvaluator struct {
	evals []*Evaluation
	errs  []error
	calls int
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, question, response, stageContext string) (*Evaluation, error) {
	i := e.calls
	if i >= len(e.evals) {
		i = len(e.evals) - 1
	}
	e.calls++
	if e.errs != nil && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	return e.evals[i], nil
}

func TestPolicyDecide(t *testing.T) {
	tests := []struct {
		name       string
		score      int
		attempt    int
		acceptable bool
		duress     bool
	}{
		{"at threshold accepts", 7, 1, true, false},
		{"above threshold accepts", 10, 1, true, false},
		{"below threshold first attempt rejects", 6, 1, false, false},
		{"below threshold second attempt rejects", 6, 2, false, false},
		{"below threshold at max attempts force-accepts", 5, 3, true, true},
		{"zero score at max attempts force-accepts", 0, 3, true, true},
		{"good score at max attempts is not duress", 8, 3, true, false},
	}

	policy := DefaultPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acceptable, duress := policy.Decide(tt.score, tt.attempt)
			assert.Equal(t, tt.acceptable, acceptable)
			assert.Equal(t, tt.duress, duress)
		})
	}
}

func TestLoopEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts at threshold", func(t *testing.T) {
		loop := NewLoop(&scriptedEvaluator{evals: []*Evaluation{{Score: 8}}}, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "a solid answer", "stage context", 1)
		require.NoError(t, err)
		assert.True(t, a.Acceptable)
		assert.False(t, a.AcceptedUnderDuress)
		assert.Equal(t, 8, a.Score)
	})

	t.Run("rejects below threshold with follow-ups", func(t *testing.T) {
		eval := &Evaluation{
			Score:     4,
			Issues:    []string{"vague"},
			FollowUps: []string{"who exactly is affected?"},
		}
		loop := NewLoop(&scriptedEvaluator{evals: []*Evaluation{eval}}, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "vague answer", "", 1)
		require.NoError(t, err)
		assert.False(t, a.Acceptable)
		assert.Equal(t, []string{"vague"}, a.Issues)
		assert.Equal(t, []string{"who exactly is affected?"}, a.FollowUps)
	})

	t.Run("force-accepts on final attempt preserving true score", func(t *testing.T) {
		loop := NewLoop(&scriptedEvaluator{evals: []*Evaluation{{Score: 5}}}, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "still weak", "", 3)
		require.NoError(t, err)
		assert.True(t, a.Acceptable)
		assert.True(t, a.AcceptedUnderDuress)
		assert.Equal(t, 5, a.Score, "true score must not be rewritten to the threshold")
		assert.Equal(t, 3, a.Attempt)
	})

	t.Run("three-attempt sequence scoring 4 4 5", func(t *testing.T) {
		ev := &scriptedEvaluator{evals: []*Evaluation{{Score: 4}, {Score: 4}, {Score: 5}}}
		loop := NewLoop(ev, DefaultPolicy())

		a1, err := loop.Evaluate(ctx, "q", "attempt one", "", 1)
		require.NoError(t, err)
		assert.False(t, a1.Acceptable)

		a2, err := loop.Evaluate(ctx, "q", "attempt two", "", 2)
		require.NoError(t, err)
		assert.False(t, a2.Acceptable)

		a3, err := loop.Evaluate(ctx, "q", "attempt three", "", 3)
		require.NoError(t, err)
		assert.True(t, a3.Acceptable)
		assert.True(t, a3.AcceptedUnderDuress)
		assert.Equal(t, 5, a3.Score)
	})

	t.Run("retries transient evaluator failure", func(t *testing.T) {
		ev := &scriptedEvaluator{
			evals: []*Evaluation{nil, {Score: 9}},
			errs: []error{
				types.NewRetryableError(types.EVALUATOR_UNAVAILABLE, "timeout"),
				nil,
			},
		}
		loop := NewLoop(ev, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "answer", "", 1)
		require.NoError(t, err)
		assert.True(t, a.Acceptable)
		assert.False(t, a.EvaluationSkipped)
		assert.Equal(t, 2, ev.calls)
	})

	t.Run("degrades to neutral accept when evaluator exhausted", func(t *testing.T) {
		failure := types.NewRetryableError(types.EVALUATOR_UNAVAILABLE, "connection refused")
		ev := &scriptedEvaluator{
			evals: []*Evaluation{nil},
			errs:  []error{failure},
		}
		loop := NewLoop(ev, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "answer", "", 1)
		require.NoError(t, err)
		assert.True(t, a.Acceptable)
		assert.True(t, a.EvaluationSkipped)
		assert.Equal(t, 5, a.Score)
		assert.Equal(t, 3, ev.calls, "initial call plus two retries")
	})

	t.Run("malformed score counts as retryable failure", func(t *testing.T) {
		ev := &scriptedEvaluator{evals: []*Evaluation{{Score: 42}, {Score: 7}}}
		loop := NewLoop(ev, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "answer", "", 1)
		require.NoError(t, err)
		assert.True(t, a.Acceptable)
		assert.Equal(t, 7, a.Score)
	})

	t.Run("non-retryable failure skips remaining retries", func(t *testing.T) {
		failure := types.NewError(types.LLM_AUTH_FAILED, "bad api key")
		ev := &scriptedEvaluator{
			evals: []*Evaluation{nil},
			errs:  []error{failure},
		}
		loop := NewLoop(ev, DefaultPolicy())

		a, err := loop.Evaluate(ctx, "q", "answer", "", 1)
		require.NoError(t, err)
		assert.True(t, a.EvaluationSkipped)
		assert.Equal(t, 1, ev.calls)
	})

	t.Run("validates inputs", func(t *testing.T) {
		loop := NewLoop(&scriptedEvaluator{evals: []*Evaluation{{Score: 8}}}, DefaultPolicy())

		_, err := loop.Evaluate(ctx, "", "a", "", 1)
		assert.Error(t, err)
		_, err = loop.Evaluate(ctx, "q", "", "", 1)
		assert.Error(t, err)
		_, err = loop.Evaluate(ctx, "q", "a", "", 0)
		assert.Error(t, err)
	})

	t.Run("cancelled context surfaces as error not acceptance", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		failure := types.NewRetryableError(types.EVALUATOR_UNAVAILABLE, "timeout")
		ev := &scriptedEvaluator{evals: []*Evaluation{nil}, errs: []error{failure}}
		loop := NewLoop(ev, DefaultPolicy())

		_, err := loop.Evaluate(cctx, "q", "answer", "", 1)
		assert.Error(t, err)
	})
}
