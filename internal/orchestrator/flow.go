package orchestrator

import (
	"context"
	"fmt"

	"github.com/iffystrayer/greenlight/internal/artifact"
	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
	"github.com/iffystrayer/greenlight/internal/types"
)

// submit applies one response to the session. Runs on the worker goroutine.
//
// Ordering contract for stage transitions: gate pass, then in-memory seal,
// then checkpoint write. A failed checkpoint write rolls the seal back, so
// "gate passed but checkpoint unwritten" is indistinguishable from "stage not
// yet gated", which is exactly what resume assumes after a crash in that
// window.
func (o *Orchestrator) submit(ctx context.Context, w *worker, response string) (*SubmitResult, error) {
	sess := w.sess
	if sess.Status != session.StatusActive {
		return nil, types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s is %s", sess.ID, sess.Status))
	}

	target := w.targetStage()
	contract, err := stage.ForNumber(target)
	if err != nil {
		return nil, err
	}

	q, ok := contract.NextQuestion(sess.Deliverable(target))
	if !ok {
		if sess.AllStagesSealed() && !sess.InRemediation() {
			return nil, types.NewError(types.SESSION_STAGE_ORDER,
				fmt.Sprintf("session %s has no pending question; finalize it instead", sess.ID))
		}
		// Complete deliverable on an ungated stage: a prior gate attempt was
		// rolled back by a failed checkpoint write. Re-drive the gate instead
		// of demanding another answer.
		return o.gateStage(ctx, w, target)
	}

	attempt := w.bumpAttempt(target, q.Field)

	qa, err := o.deps.Quality.Evaluate(ctx, q.Text, response, contract.Context(), attempt)
	if err != nil {
		// The attempt never reached a verdict; it doesn't count.
		w.attempts--
		return nil, err
	}

	if w.abandoned.Load() {
		// Abandon arrived while the evaluator call was in flight; discard
		// the result without mutating state.
		return nil, types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s was abandoned", sess.ID))
	}

	res := &SubmitResult{
		Assessment: qa,
		Accepted:   qa.Acceptable,
		Stage:      target,
	}
	defer func() { res.View = w.view() }()

	if !qa.Acceptable {
		w.log.Info(ctx, "response rejected",
			"stage", target, "field", q.Field, "score", qa.Score, "attempt", attempt)
		if err := o.persistSession(ctx, w); err != nil {
			w.log.Warn(ctx, "failed to persist retry state", "error", err.Error())
		}
		res.NextQuestion = &q
		return res, nil
	}

	if qa.AcceptedUnderDuress || qa.EvaluationSkipped {
		w.duressLog = append(w.duressLog, artifact.DuressRecord{
			Stage:             target,
			Question:          q.Text,
			Score:             qa.Score,
			Attempts:          qa.Attempt,
			EvaluationSkipped: qa.EvaluationSkipped,
		})
		w.log.Warn(ctx, "response accepted under duress",
			"stage", target, "field", q.Field, "score", qa.Score, "attempt", attempt,
			"evaluation_skipped", qa.EvaluationSkipped)
	}

	if err := sess.MergeStageData(target, contract.ExtractFields(q, response)); err != nil {
		return nil, err
	}
	w.resetAttempt()
	if err := o.persistSession(ctx, w); err != nil {
		// Accepted answers for an ungated stage live on the record until a
		// checkpoint covers them; losing this write costs at most the
		// answers since the last successful one.
		w.log.Warn(ctx, "failed to persist collected answer", "error", err.Error())
	}

	if nq, ok := contract.NextQuestion(sess.Deliverable(target)); ok {
		res.NextQuestion = &nq
		return res, nil
	}

	// Deliverable ready: gate the stage.
	gated, err := o.gateStage(ctx, w, target)
	if err != nil {
		return nil, err
	}
	res.Gate = gated.Gate
	res.CheckpointID = gated.CheckpointID
	res.Report = gated.Report
	res.Artifact = gated.Artifact
	res.NextQuestion = gated.NextQuestion
	return res, nil
}

// gateStage validates the completed deliverable and, on pass, drives the
// stage transition through checkpointing and (after the final stage) the
// consistency check. Runs on the worker goroutine.
func (o *Orchestrator) gateStage(ctx context.Context, w *worker, target int) (*SubmitResult, error) {
	sess := w.sess
	res := &SubmitResult{Stage: target, Accepted: true}
	defer func() { res.View = w.view() }()

	vr, err := o.deps.Gate.Validate(target, sess.Deliverable(target))
	if err != nil {
		return nil, err
	}
	res.Gate = &vr

	if !vr.CanProceed {
		w.log.Info(ctx, "gate blocked", "stage", target,
			"completeness", vr.Completeness,
			"missing", len(vr.MissingFields), "violations", len(vr.Violations))
		res.NextQuestion = o.pendingQuestion(w)
		return res, nil
	}

	if sess.InRemediation() {
		cpID, err := o.resealStage(ctx, w, target)
		if err != nil {
			return nil, err
		}
		res.CheckpointID = cpID
		if sess.InRemediation() {
			res.NextQuestion = o.pendingQuestion(w)
			return res, nil
		}
	} else {
		cpID, err := o.sealStage(ctx, w, target)
		if err != nil {
			return nil, err
		}
		res.CheckpointID = cpID
		if target < session.MaxStage {
			res.NextQuestion = o.pendingQuestion(w)
			return res, nil
		}
	}

	// Stage 5 gated (or the last remediation closed): run the check.
	report, art, err := o.finalize(ctx, w)
	if err != nil {
		return nil, err
	}
	res.Report = report
	res.Artifact = art
	if sess.InRemediation() {
		res.NextQuestion = o.pendingQuestion(w)
	}
	return res, nil
}

// sealStage gates the current stage: seal in memory, checkpoint durably,
// roll back on write failure.
func (o *Orchestrator) sealStage(ctx context.Context, w *worker, target int) (types.ID, error) {
	sess := w.sess
	if err := sess.SealStage(target); err != nil {
		return "", err
	}

	cpID, err := o.deps.Store.Put(ctx, sess.ID, target, sess.Snapshot(target))
	if err != nil {
		sess.UnsealStage(target)
		return "", types.WrapError(types.CHECKPOINT_WRITE_FAILED,
			fmt.Sprintf("stage %d transition rolled back", target), err)
	}

	if err := o.persistSession(ctx, w); err != nil {
		// The checkpoint is the durable source of truth for resume; the
		// record's stage column catching up later is tolerable.
		w.log.Warn(ctx, "failed to persist session position", "error", err.Error())
	}

	w.log.Info(ctx, "stage gated", "stage", target, "checkpoint_id", cpID.String())
	return cpID, nil
}

// resealStage closes a remediated stage. The corrected full snapshot is
// checkpointed only once the remediation set is empty: a checkpoint taken
// earlier would verify cleanly yet miss another stage's cleared fields, and a
// crash would resume from it straight into finalization. Until then the
// working state rides on the session record. Rolls the remediation state back
// on a checkpoint write failure.
func (o *Orchestrator) resealStage(ctx context.Context, w *worker, target int) (types.ID, error) {
	sess := w.sess
	if err := sess.ResealStage(target); err != nil {
		return "", err
	}

	if sess.InRemediation() {
		if err := o.persistSession(ctx, w); err != nil {
			w.log.Warn(ctx, "failed to persist remediation progress", "error", err.Error())
		}
		w.log.Info(ctx, "remediated stage closed", "stage", target,
			"remaining", sess.RemediationStages())
		return "", nil
	}

	cpID, err := o.deps.Store.Put(ctx, sess.ID, session.MaxStage, sess.Snapshot(session.MaxStage))
	if err != nil {
		if rerr := sess.ReopenForRemediation([]int{target}); rerr != nil {
			w.log.Error(ctx, "failed to roll back remediation reseal", "error", rerr.Error())
		}
		return "", types.WrapError(types.CHECKPOINT_WRITE_FAILED,
			fmt.Sprintf("remediation of stage %d rolled back", target), err)
	}

	if err := o.persistSession(ctx, w); err != nil {
		w.log.Warn(ctx, "failed to persist session position", "error", err.Error())
	}

	w.log.Info(ctx, "remediated stage closed", "stage", target, "checkpoint_id", cpID.String())
	return cpID, nil
}

// finalize runs the cross-stage consistency check and acts on the verdict:
// consistent completes the session and produces the artifact; contradictions
// re-open the implicated stages for remediation; an unverifiable verdict
// leaves the session active so the check can be retried. Runs on the worker
// goroutine.
func (o *Orchestrator) finalize(ctx context.Context, w *worker) (*consistency.Report, *artifact.Artifact, error) {
	sess := w.sess
	if !sess.AllStagesSealed() || sess.InRemediation() {
		return nil, nil, types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("session %s is not ready for the consistency check", sess.ID))
	}

	// Re-validate every gated stage before the verdict. Gating is cheap and
	// deterministic, and this is the last line of defense against a restore
	// source that holds an incomplete deliverable for a stage recorded as
	// gated.
	var incomplete []int
	for stageNum := session.MinStage; stageNum <= session.MaxStage; stageNum++ {
		vr, err := o.deps.Gate.Validate(stageNum, sess.Deliverable(stageNum))
		if err != nil {
			return nil, nil, err
		}
		if !vr.CanProceed {
			incomplete = append(incomplete, stageNum)
		}
	}
	if len(incomplete) > 0 {
		if err := sess.ReopenForRemediation(incomplete); err != nil {
			return nil, nil, err
		}
		if err := o.persistSession(ctx, w); err != nil {
			w.log.Warn(ctx, "failed to persist remediation set", "error", err.Error())
		}
		w.log.Warn(ctx, "gated stages failed re-validation, re-opened", "stages", incomplete)
		return nil, nil, types.NewError(types.SESSION_STAGE_ORDER,
			fmt.Sprintf("stages %v are incomplete and were re-opened for collection", incomplete))
	}

	report, err := o.deps.Checker.Check(ctx, sess.Snapshot(session.MaxStage))
	if err != nil {
		return nil, nil, err
	}

	if w.abandoned.Load() {
		return nil, nil, types.NewError(types.SESSION_NOT_ACTIVE,
			fmt.Sprintf("session %s was abandoned", sess.ID))
	}
	w.report = report

	if report.Status == consistency.StatusConsistent {
		art, err := o.deps.Aggregator.Aggregate(ctx, artifact.Input{
			SessionID:    sess.ID,
			OwnerID:      sess.OwnerID,
			ProjectLabel: sess.ProjectLabel,
			StageData:    sess.Snapshot(session.MaxStage),
			Report:       report,
			DuressLog:    w.duressLog,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := sess.Complete(); err != nil {
			return nil, nil, err
		}
		w.artifact = art
		if err := o.persistSession(ctx, w); err != nil {
			w.log.Warn(ctx, "failed to persist completion", "error", err.Error())
		}
		w.log.Info(ctx, "session completed",
			"decision", art.Decision, "confidence", report.Confidence,
			"duress_accepts", len(w.duressLog))
		o.release(sess.ID)
		return report, art, nil
	}

	if len(report.Contradictions) > 0 {
		implicated := report.ImplicatedStages()
		if err := sess.ReopenForRemediation(implicated); err != nil {
			return nil, nil, err
		}
		// Clear the conflicting fields so the stage scripts re-ask them.
		for _, c := range report.Contradictions {
			if err := sess.ClearStageFields(c.StageA, []string{c.FieldA}); err != nil {
				return nil, nil, err
			}
			if err := sess.ClearStageFields(c.StageB, []string{c.FieldB}); err != nil {
				return nil, nil, err
			}
		}
		if err := o.persistSession(ctx, w); err != nil {
			w.log.Warn(ctx, "failed to persist remediation set", "error", err.Error())
		}
		w.log.Warn(ctx, "inconsistency found, stages re-opened",
			"stages", implicated, "contradictions", len(report.Contradictions))
		return report, nil, nil
	}

	// Unverifiable: fail closed but leave the session active so the check
	// can be retried once the comparator recovers.
	w.log.Warn(ctx, "consistency unverifiable, completion blocked", "reason", report.Reason)
	return report, nil, nil
}
