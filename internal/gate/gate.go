// Package gate implements the stage-completion gate: a pure, deterministic
// validation of a stage deliverable against a static ruleset. No external
// calls, no hidden state; safe to re-run idempotently.
package gate

import (
	"fmt"

	"github.com/iffystrayer/greenlight/internal/session"
)

// ValidationResult is the outcome of gating one stage.
type ValidationResult struct {
	// Stage is the stage number that was validated
	Stage int `json:"stage"`

	// CanProceed is true only with zero missing mandatory fields and zero
	// rule violations
	CanProceed bool `json:"can_proceed"`

	// Completeness is (present mandatory fields / total mandatory fields) x 100.
	// Informational; it does not by itself gate progression.
	Completeness int `json:"completeness"`

	// MissingFields lists absent mandatory fields, in ruleset order
	MissingFields []string `json:"missing_fields,omitempty"`

	// Violations lists stage-specific rule violations, in ruleset order
	Violations []string `json:"violations,omitempty"`
}

// Gate validates completed stages against a static ruleset.
type Gate struct {
	rules Ruleset
}

// New creates a Gate over the given ruleset.
func New(rules Ruleset) *Gate {
	return &Gate{rules: rules}
}

// NewDefault creates a Gate over the built-in ruleset.
func NewDefault() *Gate {
	return New(DefaultRuleset())
}

// Validate gates one stage deliverable. It is a pure function of its inputs
// and the static ruleset: identical inputs always yield identical results.
//
// A missing or empty deliverable is an expected condition, not an error: it
// yields completeness 0 and can_proceed=false. A stage number outside the
// ruleset is a caller error.
func (g *Gate) Validate(stageNumber int, d session.Deliverable) (ValidationResult, error) {
	rules, ok := g.rules.ForStage(stageNumber)
	if !ok {
		return ValidationResult{}, fmt.Errorf("no ruleset for stage %d", stageNumber)
	}

	result := ValidationResult{Stage: stageNumber}

	present := 0
	for _, field := range rules.Mandatory {
		if d.Has(field) {
			present++
		} else {
			result.MissingFields = append(result.MissingFields, field)
		}
	}
	if len(rules.Mandatory) > 0 {
		result.Completeness = present * 100 / len(rules.Mandatory)
	} else {
		// A hand-built ruleset entry may carry only cross-field rules;
		// nothing mandatory means vacuously complete.
		result.Completeness = 100
	}

	for _, rule := range rules.CrossField {
		if !d.Has(rule.IfPresent) {
			continue
		}
		for _, required := range rule.Requires {
			if !d.Has(required) {
				result.Violations = append(result.Violations,
					fmt.Sprintf("%s: %s (missing %s)", rule.Name, rule.Description, required))
			}
		}
	}

	result.CanProceed = len(result.MissingFields) == 0 && len(result.Violations) == 0
	return result, nil
}
