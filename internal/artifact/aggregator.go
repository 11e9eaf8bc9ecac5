// Package artifact defines the final-artifact aggregation collaborator: it
// consumes the full stage data mapping plus the consistency report and
// produces the decision artifact. Rendering and export formats beyond plain
// JSON are out of scope for the engine; the default aggregator exists so a
// session can actually reach completion end to end.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// DuressRecord preserves the true sub-threshold score of a force-accepted
// response for downstream audit. Scores are never rewritten to the threshold.
type DuressRecord struct {
	Stage    int    `json:"stage"`
	Question string `json:"question"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`

	// EvaluationSkipped marks acceptances granted because the evaluator
	// was unavailable rather than by the attempt limit
	EvaluationSkipped bool `json:"evaluation_skipped,omitempty"`
}

// Input carries everything the aggregator needs.
type Input struct {
	SessionID    types.ID
	OwnerID      string
	ProjectLabel string
	StageData    map[int]session.Deliverable
	Report       *consistency.Report
	DuressLog    []DuressRecord
}

// Artifact is the final aggregated decision artifact.
type Artifact struct {
	SessionID    types.ID                    `json:"session_id"`
	ProjectLabel string                      `json:"project_label"`
	OwnerID      string                      `json:"owner_id"`
	GeneratedAt  time.Time                   `json:"generated_at"`
	Decision     string                      `json:"decision"`
	Feasibility  consistency.Feasibility     `json:"feasibility"`
	Confidence   float64                     `json:"confidence"`
	StageData    map[int]session.Deliverable `json:"stage_data"`
	Consistency  *consistency.Report         `json:"consistency"`
	QualityAudit []DuressRecord              `json:"quality_audit,omitempty"`
}

// Render serializes the artifact as indented JSON.
func (a *Artifact) Render() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render artifact: %w", err)
	}
	return data, nil
}

// Aggregator produces the final decision artifact from completed interview
// data.
type Aggregator interface {
	Aggregate(ctx context.Context, in Input) (*Artifact, error)
}

// JSONAggregator is the default Aggregator: a straight structural aggregation
// with a go/no-go decision derived from the consistency verdict.
type JSONAggregator struct{}

// NewJSONAggregator creates the default aggregator.
func NewJSONAggregator() *JSONAggregator {
	return &JSONAggregator{}
}

// Aggregate builds the decision artifact. The orchestrator only invokes this
// after the consistency check passed, so the decision is "greenlit" unless
// the report says otherwise.
func (a *JSONAggregator) Aggregate(ctx context.Context, in Input) (*Artifact, error) {
	if in.Report == nil {
		return nil, fmt.Errorf("aggregation requires a consistency report")
	}
	if len(in.StageData) != session.StageCount {
		return nil, fmt.Errorf("aggregation requires all %d stage deliverables, got %d",
			session.StageCount, len(in.StageData))
	}

	decision := "greenlit"
	if in.Report.Status != consistency.StatusConsistent {
		decision = "blocked"
	}

	return &Artifact{
		SessionID:    in.SessionID,
		ProjectLabel: in.ProjectLabel,
		OwnerID:      in.OwnerID,
		GeneratedAt:  time.Now().UTC(),
		Decision:     decision,
		Feasibility:  in.Report.Feasibility,
		Confidence:   in.Report.Confidence,
		StageData:    in.StageData,
		Consistency:  in.Report,
		QualityAudit: in.DuressLog,
	}, nil
}

var _ Aggregator = (*JSONAggregator)(nil)
