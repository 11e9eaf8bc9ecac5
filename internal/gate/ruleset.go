package gate

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
)

// CrossFieldRule is a declarative stage-specific rule: when the trigger field
// is present, every required field must also be present.
type CrossFieldRule struct {
	// Name identifies the rule in violation messages
	Name string `yaml:"name"`

	// Description explains the rule to the user on violation
	Description string `yaml:"description"`

	// IfPresent is the field that triggers the rule
	IfPresent string `yaml:"if_present"`

	// Requires lists fields that must be present when the trigger is
	Requires []string `yaml:"requires"`
}

// StageRules holds the static ruleset for one stage.
type StageRules struct {
	// Stage is the stage number (1..5)
	Stage int `yaml:"stage"`

	// Mandatory lists fields that must be present for the gate to pass,
	// in declaration order (ordering makes validation output deterministic)
	Mandatory []string `yaml:"mandatory"`

	// CrossField lists stage-specific cross-field rules
	CrossField []CrossFieldRule `yaml:"cross_field,omitempty"`
}

// Ruleset is the full static ruleset for all five stages.
type Ruleset struct {
	Stages []StageRules `yaml:"stages"`
}

// ForStage returns the rules for the given stage number.
// Returns false if the ruleset has no entry for the stage.
func (r Ruleset) ForStage(n int) (StageRules, bool) {
	for _, sr := range r.Stages {
		if sr.Stage == n {
			return sr, true
		}
	}
	return StageRules{}, false
}

// Validate checks the ruleset covers exactly stages 1..5 with at least one
// mandatory field each.
func (r Ruleset) Validate() error {
	if len(r.Stages) != session.StageCount {
		return fmt.Errorf("ruleset must cover %d stages, has %d", session.StageCount, len(r.Stages))
	}
	seen := make(map[int]bool, session.StageCount)
	for _, sr := range r.Stages {
		if sr.Stage < session.MinStage || sr.Stage > session.MaxStage {
			return fmt.Errorf("ruleset stage %d out of range", sr.Stage)
		}
		if seen[sr.Stage] {
			return fmt.Errorf("ruleset has duplicate entry for stage %d", sr.Stage)
		}
		seen[sr.Stage] = true
		if len(sr.Mandatory) == 0 {
			return fmt.Errorf("ruleset stage %d has no mandatory fields", sr.Stage)
		}
	}
	return nil
}

// ParseRuleset parses a YAML ruleset document and validates it.
// Used to override the built-in ruleset from configuration.
func ParseRuleset(data []byte) (Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return Ruleset{}, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return Ruleset{}, fmt.Errorf("invalid ruleset: %w", err)
	}
	return rs, nil
}

// DefaultRuleset returns the built-in ruleset aligned with the built-in stage
// scripts. Mandatory fields mirror each stage's scripted fields, so a stage
// whose script is exhausted is expected to gate cleanly.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Stages: []StageRules{
			{
				Stage: 1,
				Mandatory: []string{
					stage.FieldProblemStatement,
					stage.FieldAffectedUsers,
					stage.FieldCurrentImpact,
					stage.FieldBusinessObjective,
					stage.FieldUrgency,
				},
			},
			{
				Stage: 2,
				Mandatory: []string{
					stage.FieldObjectives,
					stage.FieldPrimaryMetric,
					stage.FieldMetricBaseline,
					stage.FieldTargetValue,
					stage.FieldObjectiveLinks,
				},
				CrossField: []CrossFieldRule{
					{
						Name:        "metric_maps_to_objective",
						Description: "a named primary metric must map to at least one stated objective",
						IfPresent:   stage.FieldPrimaryMetric,
						Requires:    []string{stage.FieldObjectiveLinks, stage.FieldObjectives},
					},
					{
						Name:        "target_needs_baseline",
						Description: "a target value is meaningless without a recorded baseline",
						IfPresent:   stage.FieldTargetValue,
						Requires:    []string{stage.FieldMetricBaseline},
					},
				},
			},
			{
				Stage: 3,
				Mandatory: []string{
					stage.FieldProposedApproach,
					stage.FieldAlternativesConsidered,
					stage.FieldDependencies,
					stage.FieldScopeBoundaries,
				},
			},
			{
				Stage: 4,
				Mandatory: []string{
					stage.FieldKeyRisks,
					stage.FieldMitigations,
					stage.FieldConstraints,
					stage.FieldComplianceConcerns,
				},
				CrossField: []CrossFieldRule{
					{
						Name:        "risks_need_mitigations",
						Description: "stated risks must come with stated mitigations",
						IfPresent:   stage.FieldKeyRisks,
						Requires:    []string{stage.FieldMitigations},
					},
				},
			},
			{
				Stage: 5,
				Mandatory: []string{
					stage.FieldTeam,
					stage.FieldBudgetEstimate,
					stage.FieldTimeline,
					stage.FieldMilestones,
					stage.FieldSuccessCriteria,
				},
				CrossField: []CrossFieldRule{
					{
						Name:        "milestones_need_timeline",
						Description: "milestones must sit inside a stated timeline",
						IfPresent:   stage.FieldMilestones,
						Requires:    []string{stage.FieldTimeline},
					},
				},
			},
		},
	}
}
