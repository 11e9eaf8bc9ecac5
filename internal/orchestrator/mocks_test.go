package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iffystrayer/greenlight/internal/checkpoint"
	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/database"
	"github.com/iffystrayer/greenlight/internal/quality"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// memDAO implements database.SessionDAO in memory for tests.
type memDAO struct {
	mu          sync.Mutex
	sessions    map[types.ID]database.SessionRecord
	checkpoints map[types.ID][]database.CheckpointRecord
}

func newMemDAO() *memDAO {
	return &memDAO{
		sessions:    make(map[types.ID]database.SessionRecord),
		checkpoints: make(map[types.ID][]database.CheckpointRecord),
	}
}

func (d *memDAO) CreateSession(ctx context.Context, rec *database.SessionRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[rec.ID] = *rec
	return nil
}

func (d *memDAO) UpdateSession(ctx context.Context, rec *database.SessionRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[rec.ID]; !ok {
		return types.NewError(types.SESSION_NOT_FOUND,
			fmt.Sprintf("session %s not found", rec.ID))
	}
	d.sessions[rec.ID] = *rec
	return nil
}

func (d *memDAO) GetSession(ctx context.Context, id types.ID) (*database.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.sessions[id]
	if !ok {
		return nil, types.NewError(types.SESSION_NOT_FOUND,
			fmt.Sprintf("session %s not found", id))
	}
	return &rec, nil
}

func (d *memDAO) ListSessionsByOwner(ctx context.Context, ownerID string) ([]database.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []database.SessionRecord
	for _, rec := range d.sessions {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *memDAO) InsertCheckpoint(ctx context.Context, rec *database.CheckpointRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkpoints[rec.SessionID] = append(d.checkpoints[rec.SessionID], *rec)
	return nil
}

func (d *memDAO) ListCheckpoints(ctx context.Context, sessionID types.ID) ([]database.CheckpointRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	records := d.checkpoints[sessionID]
	out := make([]database.CheckpointRecord, len(records))
	// Newest first, matching the SQL ordering contract.
	for i := range records {
		out[i] = records[len(records)-1-i]
	}
	return out, nil
}

var _ database.SessionDAO = (*memDAO)(nil)

// scoreEvaluator scores responses by content: a response starting with
// "weak:" scores 4, "duress:" scores 5, anything else scores 9. A response
// starting with "outage:" fails with a retryable error.
type scoreEvaluator struct {
	mu    sync.Mutex
	calls int
}

func (e *scoreEvaluator) Evaluate(ctx context.Context, question, response, stageContext string) (*quality.Evaluation, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	switch {
	case strings.HasPrefix(response, "outage:"):
		return nil, types.NewRetryableError(types.EVALUATOR_UNAVAILABLE, "evaluator down")
	case strings.HasPrefix(response, "weak:"):
		return &quality.Evaluation{
			Score:     4,
			Issues:    []string{"answer lacks specifics"},
			FollowUps: []string{"can you quantify that?"},
		}, nil
	case strings.HasPrefix(response, "duress:"):
		return &quality.Evaluation{Score: 5, Issues: []string{"still vague"}}, nil
	default:
		return &quality.Evaluation{Score: 9}, nil
	}
}

// scriptedComparator flags contradictions per pair key for a limited number
// of checks, then reports consistency. failAll makes every call fail.
type scriptedComparator struct {
	mu       sync.Mutex
	flagOnce map[string]consistency.Comparison
	flagged  map[string]bool
	failAll  bool
	calls    int
}

func newScriptedComparator() *scriptedComparator {
	return &scriptedComparator{
		flagOnce: make(map[string]consistency.Comparison),
		flagged:  make(map[string]bool),
	}
}

func comparatorKey(p consistency.FieldPair) string {
	return fmt.Sprintf("%d.%s/%d.%s", p.StageA, p.FieldA, p.StageB, p.FieldB)
}

func (c *scriptedComparator) Compare(ctx context.Context, pair consistency.FieldPair, textA, textB string) (*consistency.Comparison, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if c.failAll {
		return nil, types.NewError(types.COMPARATOR_UNAVAILABLE, "comparator down")
	}

	key := comparatorKey(pair)
	if cmp, ok := c.flagOnce[key]; ok && !c.flagged[key] {
		c.flagged[key] = true
		return &cmp, nil
	}
	return &consistency.Comparison{Contradictory: false, Confidence: 0.9}, nil
}

// blockingComparator holds every Compare call until release is closed,
// signaling entered on the first call. Lets tests freeze a session worker
// inside the consistency check.
type blockingComparator struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingComparator() *blockingComparator {
	return &blockingComparator{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (c *blockingComparator) Compare(ctx context.Context, pair consistency.FieldPair, textA, textB string) (*consistency.Comparison, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &consistency.Comparison{Contradictory: false, Confidence: 0.9}, nil
}

// failingStore wraps a checkpoint store and fails Put on demand.
type failingStore struct {
	checkpoint.Store
	mu      sync.Mutex
	failPut bool
}

func (s *failingStore) setFailPut(fail bool) {
	s.mu.Lock()
	s.failPut = fail
	s.mu.Unlock()
}

func (s *failingStore) Put(ctx context.Context, sessionID types.ID, stage int, snapshot map[int]session.Deliverable) (types.ID, error) {
	s.mu.Lock()
	fail := s.failPut
	s.mu.Unlock()
	if fail {
		return "", types.NewError(types.CHECKPOINT_WRITE_FAILED, "disk full")
	}
	return s.Store.Put(ctx, sessionID, stage, snapshot)
}
