package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
)

func fullStage1() session.Deliverable {
	return session.Deliverable{
		stage.FieldProblemStatement:  "support tickets take too long to resolve",
		stage.FieldAffectedUsers:     "enterprise support customers",
		stage.FieldCurrentImpact:     "NPS down 12 points",
		stage.FieldBusinessObjective: "improve retention",
		stage.FieldUrgency:           "renewal season starts next quarter",
	}
}

func TestValidate(t *testing.T) {
	g := NewDefault()

	t.Run("complete stage 1 passes at 100", func(t *testing.T) {
		result, err := g.Validate(1, fullStage1())
		require.NoError(t, err)
		assert.True(t, result.CanProceed)
		assert.Equal(t, 100, result.Completeness)
		assert.Empty(t, result.MissingFields)
		assert.Empty(t, result.Violations)
	})

	t.Run("one of five fields missing blocks at 80", func(t *testing.T) {
		d := fullStage1()
		delete(d, stage.FieldUrgency)

		result, err := g.Validate(1, d)
		require.NoError(t, err)
		assert.False(t, result.CanProceed)
		assert.Equal(t, 80, result.Completeness)
		assert.Equal(t, []string{stage.FieldUrgency}, result.MissingFields)
	})

	t.Run("empty string counts as missing", func(t *testing.T) {
		d := fullStage1()
		d[stage.FieldUrgency] = ""

		result, err := g.Validate(1, d)
		require.NoError(t, err)
		assert.False(t, result.CanProceed)
		assert.Equal(t, 80, result.Completeness)
	})

	t.Run("missing deliverable yields completeness zero not error", func(t *testing.T) {
		result, err := g.Validate(1, session.Deliverable{})
		require.NoError(t, err)
		assert.False(t, result.CanProceed)
		assert.Equal(t, 0, result.Completeness)
		assert.Len(t, result.MissingFields, 5)

		result2, err := g.Validate(1, nil)
		require.NoError(t, err)
		assert.Equal(t, result.Completeness, result2.Completeness)
	})

	t.Run("cross-field violation reported with rule name", func(t *testing.T) {
		d := session.Deliverable{
			stage.FieldObjectives:    "reduce churn",
			stage.FieldPrimaryMetric: "monthly churn rate",
			stage.FieldTargetValue:   "under 2%",
		}

		result, err := g.Validate(2, d)
		require.NoError(t, err)
		assert.False(t, result.CanProceed)
		require.NotEmpty(t, result.Violations)
		assert.Contains(t, result.Violations[0], "metric_maps_to_objective")
	})

	t.Run("unknown stage is a caller error", func(t *testing.T) {
		_, err := g.Validate(9, session.Deliverable{})
		assert.Error(t, err)
	})

	t.Run("stage with only cross-field rules is vacuously complete", func(t *testing.T) {
		rules := Ruleset{Stages: []StageRules{{
			Stage: 1,
			CrossField: []CrossFieldRule{{
				Name:        "target_needs_baseline",
				Description: "a target value needs a recorded baseline",
				IfPresent:   stage.FieldTargetValue,
				Requires:    []string{stage.FieldMetricBaseline},
			}},
		}}}
		cg := New(rules)

		result, err := cg.Validate(1, session.Deliverable{})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Completeness)
		assert.True(t, result.CanProceed)

		result, err = cg.Validate(1, session.Deliverable{stage.FieldTargetValue: "under 2%"})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Completeness)
		assert.False(t, result.CanProceed)
		require.Len(t, result.Violations, 1)
	})

	t.Run("identical inputs yield identical results", func(t *testing.T) {
		d := fullStage1()
		delete(d, stage.FieldAffectedUsers)

		first, err := g.Validate(1, d)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := g.Validate(1, d)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
}

func TestDefaultRuleset(t *testing.T) {
	rs := DefaultRuleset()
	require.NoError(t, rs.Validate())

	t.Run("covers every built-in stage's scripted fields", func(t *testing.T) {
		for _, c := range stage.All() {
			rules, ok := rs.ForStage(c.Number())
			require.True(t, ok, "stage %d has no rules", c.Number())

			// A stage whose script is exhausted must gate cleanly, so
			// every mandatory field must be a scripted field.
			d := session.Deliverable{}
			for {
				q, ok := c.NextQuestion(d)
				if !ok {
					break
				}
				d[q.Field] = "answered"
			}
			for _, field := range rules.Mandatory {
				assert.True(t, d.Has(field),
					"stage %d mandatory field %s is not scripted", c.Number(), field)
			}
		}
	})
}

func TestParseRuleset(t *testing.T) {
	t.Run("parses valid yaml", func(t *testing.T) {
		doc := `
stages:
  - stage: 1
    mandatory: [a]
  - stage: 2
    mandatory: [b]
    cross_field:
      - name: b_needs_c
        description: b requires c
        if_present: b
        requires: [c]
  - stage: 3
    mandatory: [d]
  - stage: 4
    mandatory: [e]
  - stage: 5
    mandatory: [f]
`
		rs, err := ParseRuleset([]byte(doc))
		require.NoError(t, err)

		rules, ok := rs.ForStage(2)
		require.True(t, ok)
		assert.Equal(t, "b_needs_c", rules.CrossField[0].Name)
	})

	t.Run("rejects incomplete coverage", func(t *testing.T) {
		doc := `
stages:
  - stage: 1
    mandatory: [a]
`
		_, err := ParseRuleset([]byte(doc))
		assert.Error(t, err)
	})

	t.Run("rejects stage without mandatory fields", func(t *testing.T) {
		doc := `
stages:
  - stage: 1
    mandatory: [a]
  - stage: 2
    mandatory: []
  - stage: 3
    mandatory: [b]
  - stage: 4
    mandatory: [c]
  - stage: 5
    mandatory: [d]
`
		_, err := ParseRuleset([]byte(doc))
		assert.Error(t, err)
	})
}
