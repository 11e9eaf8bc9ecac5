package consistency

import "sort"

// Severity grades how badly two stage answers conflict.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Status is the overall consistency verdict for a session.
type Status string

const (
	StatusConsistent   Status = "consistent"
	StatusInconsistent Status = "inconsistent"
)

// Feasibility is the overall feasibility verdict derived from contradictions.
type Feasibility string

const (
	// FeasibilityFeasible: no contradictions detected
	FeasibilityFeasible Feasibility = "feasible"

	// FeasibilityNeedsRevision: contradictions present but none high-severity
	FeasibilityNeedsRevision Feasibility = "needs_revision"

	// FeasibilityInfeasible: at least one high-severity contradiction
	FeasibilityInfeasible Feasibility = "infeasible"
)

// Contradiction names the two conflicting stages and describes the conflict.
type Contradiction struct {
	// StageA and StageB are the conflicting stages
	StageA int `json:"stage_a"`
	StageB int `json:"stage_b"`

	// FieldA and FieldB are the compared deliverable fields
	FieldA string `json:"field_a"`
	FieldB string `json:"field_b"`

	// Description explains the conflict
	Description string `json:"description"`

	// Severity grades the conflict
	Severity Severity `json:"severity"`
}

// Report is the outcome of the single post-stage-5 cross-stage check.
// Produced exactly once per completed session.
type Report struct {
	// Contradictions lists detected conflicts in pair-declaration order
	Contradictions []Contradiction `json:"contradictions,omitempty"`

	// Status is the overall consistency status
	Status Status `json:"status"`

	// Feasibility is the derived feasibility verdict
	Feasibility Feasibility `json:"feasibility"`

	// Confidence is the checker's confidence in the verdict (0..1).
	// Zero when the check was unverifiable.
	Confidence float64 `json:"confidence"`

	// Reason carries the explanation for degraded verdicts
	// (e.g., "consistency unverifiable")
	Reason string `json:"reason,omitempty"`
}

// ImplicatedStages returns the sorted, de-duplicated set of stages named by
// any contradiction. These are the stages the orchestrator re-opens for
// remediation.
func (r *Report) ImplicatedStages() []int {
	seen := make(map[int]bool)
	for _, c := range r.Contradictions {
		seen[c.StageA] = true
		seen[c.StageB] = true
	}
	out := make([]int, 0, len(seen))
	for stage := range seen {
		out = append(out, stage)
	}
	sort.Ints(out)
	return out
}
