package consistency

import "github.com/iffystrayer/greenlight/internal/stage"

// FieldPair designates a cross-stage field pair for semantic comparison.
type FieldPair struct {
	// StageA/FieldA is the earlier stage's field
	StageA int    `yaml:"stage_a"`
	FieldA string `yaml:"field_a"`

	// StageB/FieldB is the later stage's field
	StageB int    `yaml:"stage_b"`
	FieldB string `yaml:"field_b"`

	// Intent tells the comparator what relationship the pair should exhibit
	Intent string `yaml:"intent"`
}

// DefaultPairs returns the designated cross-stage comparisons for the
// built-in stages. Pair order is fixed; report aggregation follows it so
// results are deterministic regardless of comparison scheduling.
func DefaultPairs() []FieldPair {
	return []FieldPair{
		{
			StageA: 1, FieldA: stage.FieldBusinessObjective,
			StageB: 2, FieldB: stage.FieldPrimaryMetric,
			Intent: "the primary metric must measure progress against the stated business objective",
		},
		{
			StageA: 1, FieldA: stage.FieldProblemStatement,
			StageB: 3, FieldB: stage.FieldProposedApproach,
			Intent: "the proposed approach must plausibly address the stated problem",
		},
		{
			StageA: 2, FieldA: stage.FieldObjectives,
			StageB: 5, FieldB: stage.FieldSuccessCriteria,
			Intent: "success criteria must reflect the stated objectives",
		},
		{
			StageA: 3, FieldA: stage.FieldDependencies,
			StageB: 5, FieldB: stage.FieldTeam,
			Intent: "the staffing plan must cover the stated dependencies",
		},
		{
			StageA: 4, FieldA: stage.FieldConstraints,
			StageB: 5, FieldB: stage.FieldTimeline,
			Intent: "the timeline must be achievable within the stated constraints",
		},
		{
			StageA: 4, FieldA: stage.FieldComplianceConcerns,
			StageB: 3, FieldB: stage.FieldScopeBoundaries,
			Intent: "compliance concerns must not fall outside the stated scope",
		},
	}
}
