package quality

// Evaluation is the raw structured output of the external text-evaluation
// service for one response: a score plus annotations. The acceptance decision
// is not the service's job; it belongs to the Loop's policy.
type Evaluation struct {
	// Score is the quality score in the range 0..10
	Score int `json:"score"`

	// Issues lists the problems the evaluator found with the response
	Issues []string `json:"issues,omitempty"`

	// FollowUps lists suggested follow-up questions to elicit a better response
	FollowUps []string `json:"follow_up_questions,omitempty"`
}

// Assessment is the outcome of evaluating one user response under the
// acceptance policy. It is returned to the orchestrator and discarded after
// the retry-or-proceed decision; only its accept/reject outcome affects
// session state.
type Assessment struct {
	// Question is the question text the response answered
	Question string `json:"question"`

	// Response is the user's response text
	Response string `json:"response"`

	// Score is the quality score (0..10). For duress accepts this is the
	// true sub-threshold score, preserved for downstream audit, never
	// rewritten to the threshold.
	Score int `json:"score"`

	// Acceptable is the accept/reject decision under the policy
	Acceptable bool `json:"acceptable"`

	// Issues lists problems the evaluator found
	Issues []string `json:"issues,omitempty"`

	// FollowUps lists suggested follow-up questions for re-prompting
	FollowUps []string `json:"follow_up_questions,omitempty"`

	// Attempt is the attempt counter for this question within this stage
	Attempt int `json:"attempt"`

	// AcceptedUnderDuress marks a sub-threshold response accepted only
	// because the attempt limit was reached
	AcceptedUnderDuress bool `json:"accepted_under_duress,omitempty"`

	// EvaluationSkipped marks an acceptance granted because the evaluation
	// service was unavailable after retries
	EvaluationSkipped bool `json:"evaluation_skipped,omitempty"`
}
