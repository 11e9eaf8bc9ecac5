package stage

import (
	"strings"

	"github.com/iffystrayer/greenlight/internal/session"
)

// scriptedStage implements Contract as a fixed sequence of field-bound
// questions. All five built-in stages are scripted stages; they differ only
// in number, name, context, and script.
type scriptedStage struct {
	number  int
	name    string
	context string
	script  []Question
}

func (s *scriptedStage) Number() int { return s.number }

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Context() string { return s.context }

// NextQuestion returns the first scripted question whose field is absent from
// the deliverable. This also serves re-collection after a gate block: blocked
// stages report missing fields, and those fields' questions come up again.
func (s *scriptedStage) NextQuestion(d session.Deliverable) (Question, bool) {
	for _, q := range s.script {
		if !d.Has(q.Field) {
			return q, true
		}
	}
	return Question{}, false
}

// ExtractFields records the trimmed response under the question's field.
func (s *scriptedStage) ExtractFields(q Question, response string) session.Deliverable {
	return session.Deliverable{
		q.Field: strings.TrimSpace(response),
	}
}

var _ Contract = (*scriptedStage)(nil)
