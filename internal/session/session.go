package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/iffystrayer/greenlight/internal/types"
)

// Stage numbering constants. The interview always runs stages 1 through 5.
const (
	MinStage   = 1
	MaxStage   = 5
	StageCount = 5
)

// Session is the sole mutable aggregate for one interview in progress.
// It tracks the current stage, collected stage deliverables, and lifecycle
// status. A Session is owned exclusively by its serializing worker for the
// session's lifetime; the mutex guards the narrow read paths exposed to
// presentation code (status queries) that may race the worker.
type Session struct {
	// ID is the unique identifier for this session
	ID types.ID

	// OwnerID identifies the user conducting the interview
	OwnerID string

	// ProjectLabel is the human-readable name of the proposed initiative
	ProjectLabel string

	// CurrentStage is the stage currently being collected (1..5).
	// It only increases, one step at a time, and only after the prior
	// stage's gate passed.
	CurrentStage int

	// Status is the lifecycle status of the session
	Status Status

	// StageData maps stage number to its collected deliverable.
	// Entries for sealed stages are immutable outside remediation.
	StageData map[int]Deliverable

	// sealed marks stages whose gate has passed
	sealed map[int]bool

	// remediation marks sealed stages re-opened for correction after
	// an inconsistency finding
	remediation map[int]bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// UpdatedAt is the timestamp of the last mutation
	UpdatedAt time.Time

	// CompletedAt is the timestamp when the session completed (nil if not)
	CompletedAt *time.Time

	mu sync.RWMutex
}

// New creates a Session positioned at stage 1 with active status.
func New(ownerID, projectLabel string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           types.NewID(),
		OwnerID:      ownerID,
		ProjectLabel: projectLabel,
		CurrentStage: MinStage,
		Status:       StatusActive,
		StageData:    make(map[int]Deliverable),
		sealed:       make(map[int]bool),
		remediation:  make(map[int]bool),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MergeStageData merges extracted fields into the deliverable for the given
// stage. The stage must be the current stage, or a stage re-opened for
// remediation. Returns a caller error otherwise; invariant violations are
// never silently corrected.
func (s *Session) MergeStageData(stage int, fields Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	if stage < MinStage || stage > MaxStage {
		return types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("stage %d out of range", stage))
	}
	if s.sealed[stage] && !s.remediation[stage] {
		return types.NewError(types.SESSION_STAGE_SEALED,
			fmt.Sprintf("stage %d is gated and immutable", stage))
	}
	if !s.sealed[stage] && stage != s.CurrentStage {
		return types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("stage %d is not the current stage (%d)", stage, s.CurrentStage))
	}

	d, ok := s.StageData[stage]
	if !ok {
		d = make(Deliverable, len(fields))
		s.StageData[stage] = d
	}
	d.Merge(fields)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SealStage marks the stage as gated and advances CurrentStage by exactly one
// (when below the final stage). The stage must be the current, unsealed stage.
func (s *Session) SealStage(stage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	if stage != s.CurrentStage {
		return types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("cannot gate stage %d while current stage is %d", stage, s.CurrentStage))
	}
	if s.sealed[stage] {
		return types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("stage %d is already gated", stage))
	}

	s.sealed[stage] = true
	if stage < MaxStage {
		s.CurrentStage = stage + 1
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// UnsealStage reverses a SealStage call. It exists solely so a failed
// checkpoint write can roll the in-memory transition back; the crash-safety
// contract requires "gate passed but checkpoint unwritten" to be
// indistinguishable from "stage not yet gated".
func (s *Session) UnsealStage(stage int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed[stage] {
		return
	}
	delete(s.sealed, stage)
	if s.CurrentStage == stage+1 {
		s.CurrentStage = stage
	}
	s.UpdatedAt = time.Now().UTC()
}

// ResealStage closes a stage that was re-opened for remediation.
// CurrentStage is not changed; the stage was already counted as gated.
func (s *Session) ResealStage(stage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remediation[stage] {
		return types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("stage %d is not open for remediation", stage))
	}
	delete(s.remediation, stage)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ReopenForRemediation re-opens the given sealed stages for correction after
// an inconsistency finding. This is the one sanctioned exception to gated
// stage immutability; CurrentStage is unaffected.
func (s *Session) ReopenForRemediation(stages []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	for _, stage := range stages {
		if !s.sealed[stage] {
			return types.NewError(types.SESSION_STAGE_ORDER,
				fmt.Sprintf("cannot re-open stage %d: not gated", stage))
		}
	}
	for _, stage := range stages {
		s.remediation[stage] = true
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearStageFields removes fields from a stage deliverable so they can be
// re-collected. Only valid while the stage is open for remediation.
func (s *Session) ClearStageFields(stage int, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remediation[stage] {
		return types.NewError(types.SESSION_STAGE_SEALED,
			fmt.Sprintf("stage %d is not open for remediation", stage))
	}
	d, ok := s.StageData[stage]
	if !ok {
		return nil
	}
	for _, field := range fields {
		delete(d, field)
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RemediationStages returns the stages currently open for remediation, sorted
// ascending.
func (s *Session) RemediationStages() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int, 0, len(s.remediation))
	for stage := MinStage; stage <= MaxStage; stage++ {
		if s.remediation[stage] {
			out = append(out, stage)
		}
	}
	return out
}

// InRemediation reports whether any stage is open for remediation.
func (s *Session) InRemediation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.remediation) > 0
}

// IsSealed reports whether the stage's gate has passed.
func (s *Session) IsSealed(stage int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed[stage]
}

// AllStagesSealed reports whether every stage has been gated.
func (s *Session) AllStagesSealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for stage := MinStage; stage <= MaxStage; stage++ {
		if !s.sealed[stage] {
			return false
		}
	}
	return true
}

// Deliverable returns a copy of the deliverable for the given stage.
// Returns an empty deliverable if none has been collected yet.
func (s *Session) Deliverable(stage int) Deliverable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.StageData[stage]
	if !ok {
		return Deliverable{}
	}
	return d.Clone()
}

// Snapshot returns a deep-enough copy of all stage data up to and including
// the given stage, suitable for checkpointing.
func (s *Session) Snapshot(throughStage int) map[int]Deliverable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]Deliverable)
	for stage, d := range s.StageData {
		if stage <= throughStage {
			out[stage] = d.Clone()
		}
	}
	return out
}

// CollectingState returns the stages currently open for answer collection and
// their working deliverables: the full working snapshot while any stage is in
// remediation (corrections to already-gated stages are not checkpointed until
// the last remediated stage closes), or the current unsealed stage's partial
// deliverable otherwise. This is what must survive a restart beyond the
// gated-stage checkpoints.
func (s *Session) CollectingState() ([]int, map[int]Deliverable) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.remediation) > 0 {
		rem := make([]int, 0, len(s.remediation))
		data := make(map[int]Deliverable, len(s.StageData))
		for stage := MinStage; stage <= MaxStage; stage++ {
			if s.remediation[stage] {
				rem = append(rem, stage)
			}
		}
		for stage, d := range s.StageData {
			data[stage] = d.Clone()
		}
		return rem, data
	}

	if !s.sealed[s.CurrentStage] {
		if d, ok := s.StageData[s.CurrentStage]; ok && len(d) > 0 {
			return nil, map[int]Deliverable{s.CurrentStage: d.Clone()}
		}
	}
	return nil, nil
}

// RestoreCollecting overlays persisted in-progress answers onto a session
// rebuilt from a checkpoint. With a remediation set, the implicated stages are
// re-opened and every persisted deliverable replaces its checkpointed
// counterpart, since remediation clears fields and corrects already-gated
// stages ahead of the next checkpoint. Without one, only data for the current
// unsealed stage applies; anything else is stale and is dropped.
func (s *Session) RestoreCollecting(remediation []int, data map[int]Deliverable) error {
	if len(remediation) > 0 {
		if err := s.ReopenForRemediation(remediation); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for stage, d := range data {
		if stage < MinStage || stage > MaxStage {
			continue
		}
		switch {
		case s.remediation[stage]:
			s.StageData[stage] = d.Clone()
		case len(remediation) > 0 && s.sealed[stage]:
			s.StageData[stage] = d.Clone()
		case !s.sealed[stage] && stage == s.CurrentStage:
			s.StageData[stage] = d.Clone()
		}
	}
	return nil
}

// Progress returns the derived completion percentage (gated stages x 20).
func (s *Session) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gated := 0
	for stage := MinStage; stage <= MaxStage; stage++ {
		if s.sealed[stage] {
			gated++
		}
	}
	return gated * 100 / StageCount
}

// Abandon transitions the session to abandoned. It is an explicit external
// action, valid from any non-terminal state, and performs no stage mutation.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status.IsTerminal() {
		return types.NewError(types.SESSION_ALREADY_CLOSED,
			fmt.Sprintf("session %s is already %s", s.ID, s.Status))
	}
	s.Status = StatusAbandoned
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions the session to completed. The caller (orchestrator)
// is responsible for only invoking this after the consistency check passed
// and the artifact was produced.
func (s *Session) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	for stage := MinStage; stage <= MaxStage; stage++ {
		if !s.sealed[stage] {
			return types.NewError(types.SESSION_STAGE_ORDER,
				fmt.Sprintf("cannot complete: stage %d not gated", stage))
		}
	}
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Restore rebuilds a Session from persisted identity plus a verified
// checkpoint snapshot. All stages up to and including checkpointStage are
// marked gated; CurrentStage lands on the next stage to collect.
func Restore(id types.ID, ownerID, projectLabel string, checkpointStage int, snapshot map[int]Deliverable, createdAt time.Time) (*Session, error) {
	if checkpointStage < MinStage || checkpointStage > MaxStage {
		return nil, types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("checkpoint stage %d out of range", checkpointStage))
	}

	s := &Session{
		ID:           id,
		OwnerID:      ownerID,
		ProjectLabel: projectLabel,
		Status:       StatusActive,
		StageData:    make(map[int]Deliverable, len(snapshot)),
		sealed:       make(map[int]bool),
		remediation:  make(map[int]bool),
		CreatedAt:    createdAt,
		UpdatedAt:    time.Now().UTC(),
	}
	for stage, d := range snapshot {
		s.StageData[stage] = d.Clone()
	}
	for stage := MinStage; stage <= checkpointStage; stage++ {
		s.sealed[stage] = true
	}
	if checkpointStage < MaxStage {
		s.CurrentStage = checkpointStage + 1
	} else {
		s.CurrentStage = MaxStage
	}
	return s, nil
}
