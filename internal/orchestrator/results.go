package orchestrator

import (
	"time"

	"github.com/iffystrayer/greenlight/internal/artifact"
	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/gate"
	"github.com/iffystrayer/greenlight/internal/quality"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
	"github.com/iffystrayer/greenlight/internal/types"
)

// SessionView is a read-only snapshot of a session's externally observable
// position: stage, status, progress, and whether anything is pending.
type SessionView struct {
	SessionID    types.ID       `json:"session_id"`
	OwnerID      string         `json:"owner_id"`
	ProjectLabel string         `json:"project_label"`
	CurrentStage int            `json:"current_stage"`
	StageName    string         `json:"stage_name,omitempty"`
	Status       session.Status `json:"status"`
	Progress     int            `json:"progress"`

	// Remediation lists stages currently re-opened for correction
	Remediation []int `json:"remediation,omitempty"`

	// AwaitingFinalize is true when every stage is gated but the
	// consistency check has not yet produced a verdict
	AwaitingFinalize bool `json:"awaiting_finalize,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateResult is the outcome of creating a session: the new session's view
// plus the first question to ask.
type CreateResult struct {
	View     SessionView     `json:"view"`
	Question *stage.Question `json:"question,omitempty"`
}

// SubmitResult is the outcome of submitting one response. Exactly which
// fields are populated depends on how far the response carried the session:
// a rejected response sets only the assessment; an accepted response that
// closes a stage additionally sets the gate result and checkpoint ID; the
// final acceptance sets the consistency report and, when consistent, the
// artifact.
type SubmitResult struct {
	// Assessment is the quality assessment of the submitted response
	Assessment *quality.Assessment `json:"assessment"`

	// Accepted mirrors Assessment.Acceptable for callers that only care
	// whether to re-prompt
	Accepted bool `json:"accepted"`

	// Stage is the stage the response was applied to
	Stage int `json:"stage"`

	// NextQuestion is the next prompt, when the interview continues
	NextQuestion *stage.Question `json:"next_question,omitempty"`

	// Gate is set when a deliverable-ready signal triggered gate validation
	Gate *gate.ValidationResult `json:"gate,omitempty"`

	// CheckpointID is set when the stage transition was checkpointed
	CheckpointID types.ID `json:"checkpoint_id,omitempty"`

	// Report is set when the consistency check ran
	Report *consistency.Report `json:"report,omitempty"`

	// Artifact is set when the session completed
	Artifact *artifact.Artifact `json:"artifact,omitempty"`

	View SessionView `json:"view"`
}

// FinalizeResult is the outcome of running (or re-running) the consistency
// check and, on a consistent verdict, completing the session.
type FinalizeResult struct {
	Report   *consistency.Report `json:"report"`
	Artifact *artifact.Artifact  `json:"artifact,omitempty"`
	View     SessionView         `json:"view"`
}

// ResumeResult is the outcome of resuming a session from its latest
// checkpoint.
type ResumeResult struct {
	View SessionView `json:"view"`

	// Question is the next prompt, nil when the session resumed into the
	// awaiting-finalize position
	Question *stage.Question `json:"question,omitempty"`

	// CheckpointStage is the stage of the checkpoint the session was
	// restored from; zero when no checkpoint existed yet
	CheckpointStage int `json:"checkpoint_stage"`
}
