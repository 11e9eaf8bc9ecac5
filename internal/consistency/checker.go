// Package consistency implements the one-time cross-stage contradiction
// analysis performed after the final stage is gated. Designated field pairs
// are compared semantically via an external text-comparison service; findings
// aggregate into a single report with a feasibility verdict.
package consistency

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// Comparison is the structured output of the external comparator for one
// field pair.
type Comparison struct {
	// Contradictory is true when the two texts conflict under the pair's intent
	Contradictory bool `json:"contradictory"`

	// Severity grades the conflict; ignored when Contradictory is false
	Severity Severity `json:"severity,omitempty"`

	// Description explains the finding
	Description string `json:"description,omitempty"`

	// Confidence is the comparator's confidence in the finding (0..1)
	Confidence float64 `json:"confidence"`
}

// Comparator is the external text-comparison/reasoning service.
// Implementations must be idempotent and side-effect free; they may fail or
// time out.
type Comparator interface {
	Compare(ctx context.Context, pair FieldPair, textA, textB string) (*Comparison, error)
}

// comparatorRetries bounds retries of a failing comparator call per pair.
const comparatorRetries = 2

// Checker runs the cross-stage consistency check.
type Checker struct {
	comparator Comparator
	pairs      []FieldPair

	// maxParallel caps concurrent comparator calls
	maxParallel int
}

// NewChecker creates a Checker over the given comparator and the built-in
// field pairs.
func NewChecker(comparator Comparator) *Checker {
	return NewCheckerWithPairs(comparator, DefaultPairs())
}

// NewCheckerWithPairs creates a Checker with a custom pair set.
func NewCheckerWithPairs(comparator Comparator, pairs []FieldPair) *Checker {
	return &Checker{
		comparator:  comparator,
		pairs:       pairs,
		maxParallel: 4,
	}
}

// Check compares all designated cross-stage field pairs and aggregates the
// findings. It must be called with the full mapping of gated stage
// deliverables, strictly after stage 5's gate passed; calling it on partial
// data is a caller error.
//
// Per-pair comparisons run concurrently but aggregation follows pair
// declaration order, so the report is deterministic. Comparator failure is
// retried with bounded backoff per pair; if any pair remains unverifiable
// after retries the report fails closed: status inconsistent with reason
// "consistency unverifiable".
func (c *Checker) Check(ctx context.Context, all map[int]session.Deliverable) (*Report, error) {
	for stageNum := session.MinStage; stageNum <= session.MaxStage; stageNum++ {
		if _, ok := all[stageNum]; !ok {
			return nil, fmt.Errorf("consistency check requires all %d stage deliverables, stage %d missing",
				session.StageCount, stageNum)
		}
	}

	results := make([]*Comparison, len(c.pairs))
	errs := make([]error, len(c.pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for i, pair := range c.pairs {
		i, pair := i, pair
		g.Go(func() error {
			textA := all[pair.StageA].GetString(pair.FieldA)
			textB := all[pair.StageB].GetString(pair.FieldB)
			if textA == "" || textB == "" {
				// Gated stages should carry every designated field, but a
				// custom ruleset may not mandate one. Nothing to compare.
				return nil
			}
			cmp, err := c.compareWithRetry(gctx, pair, textA, textB)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = cmp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("consistency check cancelled: %w", ctx.Err())
	}

	for _, err := range errs {
		if err != nil {
			// Fail closed: an unverifiable pair blocks completion rather
			// than optimistically allowing it.
			return &Report{
				Status:      StatusInconsistent,
				Feasibility: FeasibilityInfeasible,
				Confidence:  0,
				Reason:      fmt.Sprintf("consistency unverifiable: %v", err),
			}, nil
		}
	}

	return c.aggregate(results), nil
}

// aggregate folds per-pair comparisons into a single report, in pair order.
func (c *Checker) aggregate(results []*Comparison) *Report {
	report := &Report{
		Status:      StatusConsistent,
		Feasibility: FeasibilityFeasible,
		Confidence:  1,
	}

	compared := 0
	confidenceSum := 0.0
	highSeverity := false

	for i, cmp := range results {
		if cmp == nil {
			continue
		}
		compared++
		confidenceSum += cmp.Confidence

		if !cmp.Contradictory {
			continue
		}

		pair := c.pairs[i]
		severity := cmp.Severity
		if !severity.IsValid() {
			severity = SeverityMedium
		}
		if severity == SeverityHigh {
			highSeverity = true
		}
		report.Contradictions = append(report.Contradictions, Contradiction{
			StageA:      pair.StageA,
			StageB:      pair.StageB,
			FieldA:      pair.FieldA,
			FieldB:      pair.FieldB,
			Description: cmp.Description,
			Severity:    severity,
		})
	}

	if compared > 0 {
		report.Confidence = confidenceSum / float64(compared)
	}
	if len(report.Contradictions) > 0 {
		report.Status = StatusInconsistent
		if highSeverity {
			report.Feasibility = FeasibilityInfeasible
		} else {
			report.Feasibility = FeasibilityNeedsRevision
		}
	}
	return report
}

// compareWithRetry calls the comparator with bounded exponential backoff.
func (c *Checker) compareWithRetry(ctx context.Context, pair FieldPair, textA, textB string) (*Comparison, error) {
	var lastErr error

	for attempt := 0; attempt <= comparatorRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		cmp, err := c.comparator.Compare(ctx, pair, textA, textB)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			if !types.IsRetryable(err) {
				return nil, err
			}
			continue
		}
		return cmp, nil
	}

	return nil, fmt.Errorf("comparator failed after %d attempts: %w", comparatorRetries+1, lastErr)
}
