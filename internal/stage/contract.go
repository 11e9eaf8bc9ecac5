// Package stage defines the uniform contract every interview stage
// implementation satisfies, and the five built-in stages of the initiative
// interview. The orchestrator depends only on the Contract interface and
// selects implementations by stage number.
package stage

import (
	"fmt"

	"github.com/iffystrayer/greenlight/internal/session"
)

// Question is a single scripted prompt bound to the deliverable field it
// populates.
type Question struct {
	// Field is the deliverable key the answer is recorded under
	Field string `json:"field"`

	// Text is the question presented to the user
	Text string `json:"text"`
}

// Contract is the uniform interface every stage implementation must satisfy.
// Implementations are stateless; all collected data lives in the session's
// stage deliverable.
type Contract interface {
	// Number returns the stage number (1..5)
	Number() int

	// Name returns the human-readable stage name
	Name() string

	// NextQuestion returns the next question to ask given the deliverable
	// collected so far. ok is false when every scripted field is present,
	// which is the stage's "deliverable ready for gating" signal.
	NextQuestion(d session.Deliverable) (q Question, ok bool)

	// ExtractFields converts an accepted response into deliverable fields.
	// Domain NLU is out of scope: the response is recorded verbatim under
	// the question's field.
	ExtractFields(q Question, response string) session.Deliverable

	// Context returns a short description of the stage's intent, supplied
	// to the quality evaluator so scoring reflects what the stage is
	// trying to learn.
	Context() string
}

// ForNumber returns the built-in stage implementation for the given number.
// Returns an error for numbers outside 1..5; the orchestrator treats that as
// a caller error, never a recoverable condition.
func ForNumber(n int) (Contract, error) {
	switch n {
	case 1:
		return problemFraming(), nil
	case 2:
		return objectivesMetrics(), nil
	case 3:
		return solutionApproach(), nil
	case 4:
		return risksConstraints(), nil
	case 5:
		return resourcesTimeline(), nil
	default:
		return nil, fmt.Errorf("no stage implementation for number %d", n)
	}
}

// All returns the five built-in stages in order.
func All() []Contract {
	stages := make([]Contract, 0, session.StageCount)
	for n := session.MinStage; n <= session.MaxStage; n++ {
		s, _ := ForNumber(n)
		stages = append(stages, s)
	}
	return stages
}
