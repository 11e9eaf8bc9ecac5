package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/iffystrayer/greenlight/internal/artifact"
	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/observability"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/stage"
)

// op is one unit of serialized work for a session worker.
type op struct {
	name string
	fn   func(ctx context.Context)
	ctx  context.Context
	done chan struct{}
}

// worker is the single owner of one session's state. All transitions for the
// session run on its goroutine, consumed from the pending queue in submission
// order; cross-session operations run fully in parallel.
type worker struct {
	sess *session.Session

	// mu guards pending and stopped. Every accepted op is guaranteed to
	// run: enqueue and stop are serialized, so an op is either rejected
	// synchronously or drained by run before the goroutine exits.
	mu      sync.Mutex
	pending []*op
	stopped bool

	// wake signals run that the queue has work; quit that stop was called
	wake chan struct{}
	quit chan struct{}

	// abandoned is set the moment an abandon request arrives so that
	// in-flight external results are discarded without mutating state
	abandoned atomic.Bool

	// attemptStage/attemptField/attempts track the retry count for the
	// question currently being answered; the count resets whenever the
	// question changes
	attemptStage int
	attemptField string
	attempts     int

	// duressLog accumulates force-accepted responses for the final
	// artifact's quality audit. Persisted on the session record alongside
	// the retry counter, so the audit survives resume.
	duressLog []artifact.DuressRecord

	// report holds the consistency verdict once the check has run
	report *consistency.Report

	// artifact holds the final decision artifact once produced
	artifact *artifact.Artifact

	log *observability.TracedLogger
}

func newWorker(sess *session.Session, log *observability.TracedLogger) *worker {
	return &worker{
		sess: sess,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		log:  log,
	}
}

// enqueue hands an operation to the worker goroutine. A false return means the
// worker already stopped; the operation will never run and done never closes.
func (w *worker) enqueue(o *op) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.pending = append(w.pending, o)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// take pops the next queued operation, or reports whether the worker stopped.
func (w *worker) take() (*op, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		o := w.pending[0]
		w.pending = w.pending[1:]
		return o, false
	}
	return nil, w.stopped
}

// run consumes the operation queue until the worker is stopped and the queue
// is empty. Operations queued before stop still run to completion; their
// callers are blocked waiting on them.
func (w *worker) run() {
	for {
		o, stopped := w.take()
		if o != nil {
			o.fn(o.ctx)
			close(o.done)
			continue
		}
		if stopped {
			return
		}
		select {
		case <-w.wake:
		case <-w.quit:
		}
	}
}

// stop marks the worker stopped. New operations are rejected from here on;
// already-queued ones drain before the goroutine exits.
func (w *worker) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	close(w.quit)
}

// bumpAttempt advances the retry counter for the given question, resetting
// it when the question differs from the one last attempted.
func (w *worker) bumpAttempt(stageNum int, field string) int {
	if w.attemptStage != stageNum || w.attemptField != field {
		w.attemptStage = stageNum
		w.attemptField = field
		w.attempts = 0
	}
	w.attempts++
	return w.attempts
}

// resetAttempt clears the retry counter after an acceptance.
func (w *worker) resetAttempt() {
	w.attemptField = ""
	w.attempts = 0
}

// view builds the externally observable snapshot of the session. Must run on
// the worker goroutine (or before the worker is started).
func (w *worker) view() SessionView {
	s := w.sess
	v := SessionView{
		SessionID:    s.ID,
		OwnerID:      s.OwnerID,
		ProjectLabel: s.ProjectLabel,
		CurrentStage: s.CurrentStage,
		Status:       s.Status,
		Progress:     s.Progress(),
		Remediation:  s.RemediationStages(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if c, err := stage.ForNumber(s.CurrentStage); err == nil {
		v.StageName = c.Name()
	}
	if s.Status == session.StatusActive && s.AllStagesSealed() && !s.InRemediation() {
		v.AwaitingFinalize = true
	}
	return v
}

// targetStage returns the stage the next response applies to: the lowest
// stage open for remediation, or the current stage otherwise.
func (w *worker) targetStage() int {
	if rem := w.sess.RemediationStages(); len(rem) > 0 {
		return rem[0]
	}
	return w.sess.CurrentStage
}
