package consistency

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
	"github.com/iffystrayer/greenlight/internal/types"
)

// pairKeyedComparator returns a scripted comparison per field pair, defaulting
// to "no contradiction". It is safe for concurrent use.
type pairKeyedComparator struct {
	mu      sync.Mutex
	results map[string]*Comparison
	errs    map[string]error
	calls   int
}

func pairKey(p FieldPair) string {
	return fmt.Sprintf("%d.%s/%d.%s", p.StageA, p.FieldA, p.StageB, p.FieldB)
}

func (c *pairKeyedComparator) Compare(ctx context.Context, pair FieldPair, textA, textB string) (*Comparison, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	key := pairKey(pair)
	if err, ok := c.errs[key]; ok {
		return nil, err
	}
	if cmp, ok := c.results[key]; ok {
		return cmp, nil
	}
	return &Comparison{Contradictory: false, Confidence: 0.9}, nil
}

// allStages builds a full five-stage deliverable map where every designated
// pair field is present.
func allStages() map[int]session.Deliverable {
	all := make(map[int]session.Deliverable, session.StageCount)
	for n := session.MinStage; n <= session.MaxStage; n++ {
		all[n] = session.Deliverable{}
	}
	for _, p := range DefaultPairs() {
		all[p.StageA][p.FieldA] = "text for " + p.FieldA
		all[p.StageB][p.FieldB] = "text for " + p.FieldB
	}
	return all
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent when no pair contradicts", func(t *testing.T) {
		cmp := &pairKeyedComparator{}
		report, err := NewChecker(cmp).Check(ctx, allStages())
		require.NoError(t, err)

		assert.Equal(t, StatusConsistent, report.Status)
		assert.Equal(t, FeasibilityFeasible, report.Feasibility)
		assert.Empty(t, report.Contradictions)
		assert.InDelta(t, 0.9, report.Confidence, 0.001)
		assert.Equal(t, len(DefaultPairs()), cmp.calls)
	})

	t.Run("objective versus metric contradiction implicates stages 1 and 2", func(t *testing.T) {
		all := allStages()
		all[1][stage.FieldBusinessObjective] = "reduce customer churn"
		all[2][stage.FieldPrimaryMetric] = "total new revenue booked"

		key := pairKey(FieldPair{
			StageA: 1, FieldA: stage.FieldBusinessObjective,
			StageB: 2, FieldB: stage.FieldPrimaryMetric,
		})
		cmp := &pairKeyedComparator{
			results: map[string]*Comparison{
				key: {
					Contradictory: true,
					Severity:      SeverityHigh,
					Description:   "the metric measures acquisition while the objective targets retention",
					Confidence:    0.95,
				},
			},
		}

		report, err := NewChecker(cmp).Check(ctx, all)
		require.NoError(t, err)

		assert.Equal(t, StatusInconsistent, report.Status)
		assert.Equal(t, FeasibilityInfeasible, report.Feasibility)
		require.Len(t, report.Contradictions, 1)
		assert.Equal(t, 1, report.Contradictions[0].StageA)
		assert.Equal(t, 2, report.Contradictions[0].StageB)
		assert.Equal(t, []int{1, 2}, report.ImplicatedStages())
	})

	t.Run("medium severity alone yields needs_revision", func(t *testing.T) {
		pairs := DefaultPairs()
		key := pairKey(pairs[2])
		cmp := &pairKeyedComparator{
			results: map[string]*Comparison{
				key: {Contradictory: true, Severity: SeverityMedium, Confidence: 0.8},
			},
		}

		report, err := NewChecker(cmp).Check(ctx, allStages())
		require.NoError(t, err)
		assert.Equal(t, StatusInconsistent, report.Status)
		assert.Equal(t, FeasibilityNeedsRevision, report.Feasibility)
	})

	t.Run("invalid severity defaults to medium", func(t *testing.T) {
		key := pairKey(DefaultPairs()[0])
		cmp := &pairKeyedComparator{
			results: map[string]*Comparison{
				key: {Contradictory: true, Severity: Severity("catastrophic"), Confidence: 0.7},
			},
		}

		report, err := NewChecker(cmp).Check(ctx, allStages())
		require.NoError(t, err)
		require.Len(t, report.Contradictions, 1)
		assert.Equal(t, SeverityMedium, report.Contradictions[0].Severity)
	})

	t.Run("contradictions follow pair declaration order", func(t *testing.T) {
		pairs := DefaultPairs()
		cmp := &pairKeyedComparator{
			results: map[string]*Comparison{
				pairKey(pairs[4]): {Contradictory: true, Severity: SeverityLow, Confidence: 0.8, Description: "later pair"},
				pairKey(pairs[1]): {Contradictory: true, Severity: SeverityLow, Confidence: 0.8, Description: "earlier pair"},
			},
		}

		for i := 0; i < 5; i++ {
			report, err := NewChecker(cmp).Check(ctx, allStages())
			require.NoError(t, err)
			require.Len(t, report.Contradictions, 2)
			assert.Equal(t, "earlier pair", report.Contradictions[0].Description)
			assert.Equal(t, "later pair", report.Contradictions[1].Description)
		}
	})

	t.Run("unverifiable pair fails closed", func(t *testing.T) {
		key := pairKey(DefaultPairs()[3])
		cmp := &pairKeyedComparator{
			errs: map[string]error{
				key: types.NewError(types.COMPARATOR_UNAVAILABLE, "service down"),
			},
		}

		report, err := NewChecker(cmp).Check(ctx, allStages())
		require.NoError(t, err)
		assert.Equal(t, StatusInconsistent, report.Status)
		assert.Equal(t, FeasibilityInfeasible, report.Feasibility)
		assert.Zero(t, report.Confidence)
		assert.Contains(t, report.Reason, "consistency unverifiable")
		assert.Empty(t, report.Contradictions)
	})

	t.Run("retries transient comparator failures", func(t *testing.T) {
		cmp := &flakyComparator{failuresLeft: 1}
		report, err := NewCheckerWithPairs(cmp, DefaultPairs()[:1]).Check(ctx, allStages())
		require.NoError(t, err)
		assert.Equal(t, StatusConsistent, report.Status)
		assert.Equal(t, 2, cmp.calls)
	})

	t.Run("partial deliverables are a caller error", func(t *testing.T) {
		all := allStages()
		delete(all, 5)
		_, err := NewChecker(&pairKeyedComparator{}).Check(ctx, all)
		assert.Error(t, err)
	})
}

// flakyComparator fails the first N calls with a retryable error.
type flakyComparator struct {
	mu           sync.Mutex
	failuresLeft int
	calls        int
}

func (c *flakyComparator) Compare(ctx context.Context, pair FieldPair, textA, textB string) (*Comparison, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failuresLeft > 0 {
		c.failuresLeft--
		return nil, types.NewRetryableError(types.COMPARATOR_UNAVAILABLE, "transient")
	}
	return &Comparison{Contradictory: false, Confidence: 1}, nil
}
