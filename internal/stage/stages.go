package stage

// Field names shared between stage scripts and the gate rulesets.
// Gate mandatory-field rules reference these constants so the two cannot
// silently drift apart.
const (
	// Stage 1: problem framing
	FieldProblemStatement  = "problem_statement"
	FieldAffectedUsers     = "affected_users"
	FieldCurrentImpact     = "current_impact"
	FieldBusinessObjective = "business_objective"
	FieldUrgency           = "urgency"

	// Stage 2: objectives and metrics
	FieldObjectives     = "objectives"
	FieldPrimaryMetric  = "primary_metric"
	FieldMetricBaseline = "metric_baseline"
	FieldTargetValue    = "target_value"
	FieldObjectiveLinks = "objective_links"

	// Stage 3: solution approach
	FieldProposedApproach       = "proposed_approach"
	FieldAlternativesConsidered = "alternatives_considered"
	FieldDependencies           = "dependencies"
	FieldScopeBoundaries        = "scope_boundaries"

	// Stage 4: risks and constraints
	FieldKeyRisks           = "key_risks"
	FieldMitigations        = "mitigations"
	FieldConstraints        = "constraints"
	FieldComplianceConcerns = "compliance_concerns"

	// Stage 5: resources and timeline
	FieldTeam            = "team"
	FieldBudgetEstimate  = "budget_estimate"
	FieldTimeline        = "timeline"
	FieldMilestones      = "milestones"
	FieldSuccessCriteria = "success_criteria"
)

func problemFraming() Contract {
	return &scriptedStage{
		number:  1,
		name:    "Problem Framing",
		context: "Establish what problem the initiative addresses, who is affected, and why it matters now.",
		script: []Question{
			{Field: FieldProblemStatement, Text: "What problem is this initiative trying to solve?"},
			{Field: FieldAffectedUsers, Text: "Who is affected by this problem today?"},
			{Field: FieldCurrentImpact, Text: "What is the current impact of the problem on the business?"},
			{Field: FieldBusinessObjective, Text: "Which business objective does solving this problem serve?"},
			{Field: FieldUrgency, Text: "Why does this need to be addressed now?"},
		},
	}
}

func objectivesMetrics() Contract {
	return &scriptedStage{
		number:  2,
		name:    "Objectives & Metrics",
		context: "Pin down measurable objectives, the primary success metric, its baseline, and the target.",
		script: []Question{
			{Field: FieldObjectives, Text: "What are the concrete objectives of this initiative?"},
			{Field: FieldPrimaryMetric, Text: "What is the single primary metric for success?"},
			{Field: FieldMetricBaseline, Text: "What is the current baseline value of that metric?"},
			{Field: FieldTargetValue, Text: "What target value would count as success?"},
			{Field: FieldObjectiveLinks, Text: "How does the primary metric map to the stated business objectives?"},
		},
	}
}

func solutionApproach() Contract {
	return &scriptedStage{
		number:  3,
		name:    "Solution Approach",
		context: "Understand the proposed approach, alternatives considered, dependencies, and scope boundaries.",
		script: []Question{
			{Field: FieldProposedApproach, Text: "What approach are you proposing?"},
			{Field: FieldAlternativesConsidered, Text: "What alternatives did you consider and reject?"},
			{Field: FieldDependencies, Text: "What teams, systems, or vendors does this depend on?"},
			{Field: FieldScopeBoundaries, Text: "What is explicitly out of scope?"},
		},
	}
}

func risksConstraints() Contract {
	return &scriptedStage{
		number:  4,
		name:    "Risks & Constraints",
		context: "Surface the key risks, how they will be mitigated, and any hard constraints or compliance concerns.",
		script: []Question{
			{Field: FieldKeyRisks, Text: "What are the biggest risks to this initiative?"},
			{Field: FieldMitigations, Text: "How will each of those risks be mitigated?"},
			{Field: FieldConstraints, Text: "What hard constraints (technical, legal, organizational) apply?"},
			{Field: FieldComplianceConcerns, Text: "Are there regulatory or compliance concerns?"},
		},
	}
}

func resourcesTimeline() Contract {
	return &scriptedStage{
		number:  5,
		name:    "Resources & Timeline",
		context: "Establish who will do the work, what it costs, when it lands, and how completion is judged.",
		script: []Question{
			{Field: FieldTeam, Text: "Who will staff this initiative?"},
			{Field: FieldBudgetEstimate, Text: "What is the estimated budget?"},
			{Field: FieldTimeline, Text: "What is the expected timeline?"},
			{Field: FieldMilestones, Text: "What are the key milestones?"},
			{Field: FieldSuccessCriteria, Text: "How will you know the initiative is done and successful?"},
		},
	}
}
