// Package orchestrator implements the stage-gated interview state machine.
// It owns session lifecycle and stage progression, and composes the
// collaborators that do the actual judging: the quality loop for per-response
// acceptance, the stage gate for deliverable validation, the consistency
// checker for the one-time cross-stage analysis, and the checkpoint store for
// crash-safe progress.
//
// Session states: a session starts active at stage 1, each stage moves from
// collecting to gated exactly once (remediation aside), and after stage 5 is
// gated the consistency check decides between completion and remediation.
// Abandonment is reachable from any non-terminal state.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iffystrayer/greenlight/internal/artifact"
	"github.com/iffystrayer/greenlight/internal/checkpoint"
	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/database"
	"github.com/iffystrayer/greenlight/internal/gate"
	"github.com/iffystrayer/greenlight/internal/observability"
	"github.com/iffystrayer/greenlight/internal/quality"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
	"github.com/iffystrayer/greenlight/internal/types"
)

// Dependencies are the collaborators the orchestrator composes. All are
// required except LogHandler (defaults to slog's default handler) and
// OperationTimeout (defaults to 2 minutes).
type Dependencies struct {
	Sessions   database.SessionDAO
	Store      checkpoint.Store
	Quality    *quality.Loop
	Gate       *gate.Gate
	Checker    *consistency.Checker
	Aggregator artifact.Aggregator

	LogHandler slog.Handler

	// OperationTimeout bounds a single operation end to end, including all
	// external calls it makes
	OperationTimeout time.Duration
}

// Orchestrator conducts interview sessions. Each loaded session is owned by
// one worker goroutine consuming an operation queue; the orchestrator routes
// public operations to the owning worker.
type Orchestrator struct {
	deps Dependencies

	mu      sync.Mutex
	workers map[types.ID]*worker
	closed  bool
}

// New creates an Orchestrator over the given dependencies.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session DAO is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if deps.Quality == nil {
		return nil, fmt.Errorf("quality loop is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("stage gate is required")
	}
	if deps.Checker == nil {
		return nil, fmt.Errorf("consistency checker is required")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("artifact aggregator is required")
	}
	if deps.LogHandler == nil {
		deps.LogHandler = slog.Default().Handler()
	}
	if deps.OperationTimeout <= 0 {
		deps.OperationTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		deps:    deps,
		workers: make(map[types.ID]*worker),
	}, nil
}

// Close stops all session workers. Queued operations drain before each worker
// exits; durable state survives in the store and on the session records.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for id, w := range o.workers {
		w.stop()
		delete(o.workers, id)
	}
}

// CreateSession starts a new interview session at stage 1 and returns the
// first question.
func (o *Orchestrator) CreateSession(ctx context.Context, ownerID, projectLabel string) (*CreateResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner ID cannot be empty")
	}
	if projectLabel == "" {
		return nil, fmt.Errorf("project label cannot be empty")
	}

	sess := session.New(ownerID, projectLabel)

	ctx, span := observability.StartSpan(ctx, "session.create", sess.ID.String(),
		attribute.String("owner.id", ownerID))
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	rec := &database.SessionRecord{
		ID:           sess.ID,
		OwnerID:      ownerID,
		ProjectLabel: projectLabel,
		CurrentStage: sess.CurrentStage,
		Status:       string(sess.Status),
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
	if opErr = o.deps.Sessions.CreateSession(ctx, rec); opErr != nil {
		return nil, opErr
	}

	w, opErr := o.adopt(sess, nil)
	if opErr != nil {
		return nil, opErr
	}

	w.log.Info(ctx, "session created", "owner_id", ownerID, "project", projectLabel)

	res := &CreateResult{View: w.view()}
	first, _ := stage.ForNumber(session.MinStage)
	if q, ok := first.NextQuestion(sess.Deliverable(session.MinStage)); ok {
		res.Question = &q
	}
	return res, nil
}

// SubmitResponse submits one user response to the session's pending question.
// The response is quality-assessed before any state changes; acceptance may
// cascade through gate validation, checkpointing, and (after stage 5) the
// consistency check, all within this call.
func (o *Orchestrator) SubmitResponse(ctx context.Context, sessionID types.ID, response string) (*SubmitResult, error) {
	if response == "" {
		return nil, fmt.Errorf("response cannot be empty")
	}

	var res *SubmitResult
	err := o.perform(ctx, sessionID, "session.submit", func(ctx context.Context, w *worker) error {
		var err error
		res, err = o.submit(ctx, w, response)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Finalize runs the cross-stage consistency check for a session whose five
// stages are all gated, completing the session on a consistent verdict. It is
// invoked automatically when the final acceptance gates stage 5; calling it
// directly is how a caller retries after an unverifiable verdict left the
// session blocked.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID types.ID) (*FinalizeResult, error) {
	var res *FinalizeResult
	err := o.perform(ctx, sessionID, "session.finalize", func(ctx context.Context, w *worker) error {
		if w.sess.Status != session.StatusActive {
			return types.NewError(types.SESSION_NOT_ACTIVE,
				fmt.Sprintf("session %s is %s", w.sess.ID, w.sess.Status))
		}
		report, art, err := o.finalize(ctx, w)
		if err != nil {
			return err
		}
		res = &FinalizeResult{Report: report, Artifact: art, View: w.view()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Status returns the session's externally observable position. For a loaded
// session the read is serialized through its worker; for an unloaded one it
// falls back to the persisted record.
func (o *Orchestrator) Status(ctx context.Context, sessionID types.ID) (*SessionView, error) {
	var view SessionView
	err := o.perform(ctx, sessionID, "session.status", func(ctx context.Context, w *worker) error {
		view = w.view()
		return nil
	})
	if err == nil {
		return &view, nil
	}
	if !types.HasCode(err, types.SESSION_NOT_FOUND) && !types.HasCode(err, types.SESSION_ALREADY_CLOSED) {
		return nil, err
	}

	rec, err := o.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rv := recordView(rec)
	return &rv, nil
}

// AbandonSession abandons the session. The abandonment flag is raised
// immediately so any in-flight external result is discarded without state
// mutation; the status transition itself applies at the next operation
// boundary.
func (o *Orchestrator) AbandonSession(ctx context.Context, sessionID types.ID) error {
	o.mu.Lock()
	w := o.workers[sessionID]
	o.mu.Unlock()

	if w == nil {
		// Not loaded: flip the persisted record directly.
		rec, err := o.deps.Sessions.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status(rec.Status).IsTerminal() {
			return types.NewError(types.SESSION_ALREADY_CLOSED,
				fmt.Sprintf("session %s is already %s", sessionID, rec.Status))
		}
		rec.Status = string(session.StatusAbandoned)
		return o.deps.Sessions.UpdateSession(ctx, rec)
	}

	w.abandoned.Store(true)

	return o.perform(ctx, sessionID, "session.abandon", func(ctx context.Context, w *worker) error {
		if err := w.sess.Abandon(); err != nil {
			return err
		}
		if err := o.persistSession(ctx, w); err != nil {
			w.log.Warn(ctx, "failed to persist abandonment", "error", err.Error())
		}
		w.log.Info(ctx, "session abandoned")
		o.release(w.sess.ID)
		return nil
	})
}

// ResumeSession loads a session from its latest verified checkpoint. A digest
// mismatch on the most recent checkpoint fails closed; allowFallback opts
// into restoring from the newest older checkpoint that still verifies,
// accepting the loss of the corrupted stages.
func (o *Orchestrator) ResumeSession(ctx context.Context, sessionID types.ID, allowFallback bool) (*ResumeResult, error) {
	ctx, span := observability.StartSpan(ctx, "session.resume", sessionID.String(),
		attribute.Bool("resume.allow_fallback", allowFallback))
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	o.mu.Lock()
	if w := o.workers[sessionID]; w != nil {
		o.mu.Unlock()
		// Already loaded; resuming is idempotent.
		var res *ResumeResult
		opErr = o.perform(ctx, sessionID, "session.resume", func(ctx context.Context, w *worker) error {
			res = &ResumeResult{View: w.view(), Question: o.pendingQuestion(w)}
			return nil
		})
		if opErr != nil {
			return nil, opErr
		}
		return res, nil
	}
	o.mu.Unlock()

	rec, err := o.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		opErr = err
		return nil, err
	}
	if session.Status(rec.Status).IsTerminal() {
		opErr = types.NewError(types.SESSION_ALREADY_CLOSED,
			fmt.Sprintf("session %s is %s and cannot be resumed", sessionID, rec.Status))
		return nil, opErr
	}

	sess, cpStage, err := o.restore(ctx, rec, allowFallback)
	if err != nil {
		opErr = err
		return nil, err
	}

	var duress []artifact.DuressRecord
	if len(rec.DuressLog) > 0 {
		if err := json.Unmarshal(rec.DuressLog, &duress); err != nil {
			opErr = types.WrapError(types.DB_QUERY_FAILED,
				fmt.Sprintf("session %s has an unreadable quality audit", sessionID), err)
			return nil, opErr
		}
	}

	w, err := o.adopt(sess, func(w *worker) {
		w.attemptStage = rec.AttemptStage
		w.attemptField = rec.AttemptField
		w.attempts = rec.Attempts
		w.duressLog = duress
	})
	if err != nil {
		opErr = err
		return nil, err
	}

	w.log.Info(ctx, "session resumed", "checkpoint_stage", cpStage,
		"current_stage", sess.CurrentStage)

	return &ResumeResult{
		View:            w.view(),
		Question:        o.pendingQuestion(w),
		CheckpointStage: cpStage,
	}, nil
}

// restore rebuilds the in-memory session from the latest checkpoint, or fresh
// at stage 1 when no checkpoint was ever written (a crash before the first
// gate leaves the stage legitimately ungated). Answers collected since the
// last checkpoint, and any open remediation, are overlaid from the session
// record so mid-stage progress survives a restart.
func (o *Orchestrator) restore(ctx context.Context, rec *database.SessionRecord, allowFallback bool) (*session.Session, int, error) {
	var sess *session.Session
	cpStage := 0

	cp, err := o.deps.Store.GetLatestVerified(ctx, rec.ID)
	if err != nil {
		switch {
		case types.HasCode(err, types.CHECKPOINT_NOT_FOUND):
			sess = session.New(rec.OwnerID, rec.ProjectLabel)
			sess.ID = rec.ID
			sess.CreatedAt = rec.CreatedAt
		case types.HasCode(err, types.CHECKPOINT_CORRUPT) && allowFallback:
			cp, err = o.deps.Store.GetLatestValid(ctx, rec.ID)
			if err != nil {
				return nil, 0, err
			}
		default:
			return nil, 0, err
		}
	}
	if sess == nil {
		sess, err = session.Restore(rec.ID, rec.OwnerID, rec.ProjectLabel,
			cp.Stage, cp.Snapshot, rec.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		cpStage = cp.Stage
	}

	if err := overlayCollecting(rec, sess); err != nil {
		return nil, 0, err
	}
	return sess, cpStage, nil
}

// overlayCollecting applies the record's persisted collection state (ungated
// answers, remediation set) on top of the checkpoint-restored session.
func overlayCollecting(rec *database.SessionRecord, sess *session.Session) error {
	var rem []int
	if len(rec.Remediation) > 0 {
		if err := json.Unmarshal(rec.Remediation, &rem); err != nil {
			return types.WrapError(types.DB_QUERY_FAILED,
				fmt.Sprintf("session %s has an unreadable remediation set", rec.ID), err)
		}
	}
	var data map[int]session.Deliverable
	if len(rec.StageData) > 0 {
		if err := json.Unmarshal(rec.StageData, &data); err != nil {
			return types.WrapError(types.DB_QUERY_FAILED,
				fmt.Sprintf("session %s has unreadable in-progress stage data", rec.ID), err)
		}
	}
	if len(rem) == 0 && len(data) == 0 {
		return nil
	}
	return sess.RestoreCollecting(rem, data)
}

// adopt registers a worker as the single owner of the session and starts its
// goroutine. configure, when given, seeds worker state restored from the
// session record; it runs before the goroutine starts.
func (o *Orchestrator) adopt(sess *session.Session, configure func(*worker)) (*worker, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, fmt.Errorf("orchestrator is closed")
	}
	if existing := o.workers[sess.ID]; existing != nil {
		return existing, nil
	}

	log := observability.NewTracedLogger(o.deps.LogHandler, sess.ID.String(), "orchestrator")
	w := newWorker(sess, log)
	if configure != nil {
		configure(w)
	}
	o.workers[sess.ID] = w
	go w.run()
	return w, nil
}

// release stops and forgets a session's worker. Called when the session
// reaches a terminal state.
func (o *Orchestrator) release(id types.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if w := o.workers[id]; w != nil {
		w.stop()
		delete(o.workers, id)
	}
}

// perform routes an operation to the session's worker and waits for it. The
// operation context carries the configured timeout; every external call made
// inside the operation inherits it.
func (o *Orchestrator) perform(ctx context.Context, sessionID types.ID, name string, fn func(ctx context.Context, w *worker) error) error {
	o.mu.Lock()
	w := o.workers[sessionID]
	o.mu.Unlock()

	if w == nil {
		return types.NewError(types.SESSION_NOT_FOUND,
			fmt.Sprintf("session %s is not loaded; create or resume it first", sessionID))
	}

	ctx, cancel := context.WithTimeout(ctx, o.deps.OperationTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, name, sessionID.String())

	var opErr error
	done := make(chan struct{})
	queued := &op{
		name: name,
		ctx:  ctx,
		done: done,
		fn: func(ctx context.Context) {
			opErr = fn(ctx, w)
		},
	}

	if !w.enqueue(queued) {
		observability.EndSpan(span, nil)
		return types.NewError(types.SESSION_ALREADY_CLOSED,
			fmt.Sprintf("session %s is closed", sessionID))
	}

	// Every accepted operation runs, even past context expiry: the worker
	// drains its queue before exiting, and the operation observes the same
	// context and aborts its external calls on its own.
	<-done
	observability.EndSpan(span, opErr)
	return opErr
}

// persistSession writes the session's current position to its durable record,
// including everything the checkpoints do not cover: answers collected for
// ungated stages, the remediation set, the pending question's retry counter,
// and the duress audit.
func (o *Orchestrator) persistSession(ctx context.Context, w *worker) error {
	s := w.sess
	rec := &database.SessionRecord{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		ProjectLabel: s.ProjectLabel,
		CurrentStage: s.CurrentStage,
		Status:       string(s.Status),
		AttemptStage: w.attemptStage,
		AttemptField: w.attemptField,
		Attempts:     w.attempts,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		CompletedAt:  s.CompletedAt,
	}

	rem, data := s.CollectingState()
	if len(rem) > 0 {
		b, err := json.Marshal(rem)
		if err != nil {
			return fmt.Errorf("failed to encode remediation set: %w", err)
		}
		rec.Remediation = b
	}
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode in-progress stage data: %w", err)
		}
		rec.StageData = b
	}
	if len(w.duressLog) > 0 {
		b, err := json.Marshal(w.duressLog)
		if err != nil {
			return fmt.Errorf("failed to encode quality audit: %w", err)
		}
		rec.DuressLog = b
	}

	return o.deps.Sessions.UpdateSession(ctx, rec)
}

// pendingQuestion returns the next question for the session's target stage,
// or nil when the session is awaiting finalization.
func (o *Orchestrator) pendingQuestion(w *worker) *stage.Question {
	target := w.targetStage()
	c, err := stage.ForNumber(target)
	if err != nil {
		return nil
	}
	if q, ok := c.NextQuestion(w.sess.Deliverable(target)); ok {
		return &q
	}
	return nil
}

// recordView builds a view from a persisted record alone, for sessions that
// are not loaded in memory.
func recordView(rec *database.SessionRecord) SessionView {
	v := SessionView{
		SessionID:    rec.ID,
		OwnerID:      rec.OwnerID,
		ProjectLabel: rec.ProjectLabel,
		CurrentStage: rec.CurrentStage,
		Status:       session.Status(rec.Status),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if c, err := stage.ForNumber(rec.CurrentStage); err == nil {
		v.StageName = c.Name()
	}
	if session.Status(rec.Status) == session.StatusCompleted {
		v.Progress = 100
	}
	if len(rec.Remediation) > 0 {
		var rem []int
		if err := json.Unmarshal(rec.Remediation, &rem); err == nil {
			v.Remediation = rem
		}
	}
	return v
}
