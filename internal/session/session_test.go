package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iffystrayer/greenlight/internal/types"
)

func seal(t *testing.T, s *Session, stage int) {
	t.Helper()
	require.NoError(t, s.MergeStageData(stage, Deliverable{"field": "value"}))
	require.NoError(t, s.SealStage(stage))
}

func sealAll(t *testing.T, s *Session) {
	t.Helper()
	for stage := MinStage; stage <= MaxStage; stage++ {
		seal(t, s, stage)
	}
}

func TestNew(t *testing.T) {
	s := New("alice", "checkout revamp")

	assert.False(t, s.ID.IsZero())
	assert.Equal(t, MinStage, s.CurrentStage)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 0, s.Progress())
	assert.False(t, s.AllStagesSealed())
}

func TestMergeStageData(t *testing.T) {
	t.Run("merges into current stage", func(t *testing.T) {
		s := New("alice", "p")
		require.NoError(t, s.MergeStageData(1, Deliverable{"problem_statement": "churn"}))
		assert.Equal(t, "churn", s.Deliverable(1).GetString("problem_statement"))
	})

	t.Run("rejects non-current stage", func(t *testing.T) {
		s := New("alice", "p")
		err := s.MergeStageData(2, Deliverable{"objectives": "x"})
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.SESSION_STAGE_ORDER))
	})

	t.Run("rejects gated stage", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)

		err := s.MergeStageData(1, Deliverable{"problem_statement": "revised"})
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.SESSION_STAGE_SEALED))
	})

	t.Run("rejects out-of-range stage", func(t *testing.T) {
		s := New("alice", "p")
		assert.Error(t, s.MergeStageData(0, Deliverable{"x": "y"}))
		assert.Error(t, s.MergeStageData(6, Deliverable{"x": "y"}))
	})

	t.Run("rejects terminal session", func(t *testing.T) {
		s := New("alice", "p")
		require.NoError(t, s.Abandon())
		err := s.MergeStageData(1, Deliverable{"x": "y"})
		assert.True(t, types.HasCode(err, types.SESSION_NOT_ACTIVE))
	})
}

func TestSealStage(t *testing.T) {
	t.Run("advances current stage by exactly one", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)
		assert.Equal(t, 2, s.CurrentStage)
		assert.True(t, s.IsSealed(1))
		assert.Equal(t, 20, s.Progress())
	})

	t.Run("rejects skipping a stage", func(t *testing.T) {
		s := New("alice", "p")
		err := s.SealStage(3)
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.SESSION_STAGE_ORDER))
	})

	t.Run("rejects double seal", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)
		assert.Error(t, s.SealStage(1))
	})

	t.Run("current stage never decreases through normal flow", func(t *testing.T) {
		s := New("alice", "p")
		prev := s.CurrentStage
		for stage := MinStage; stage <= MaxStage; stage++ {
			seal(t, s, stage)
			assert.GreaterOrEqual(t, s.CurrentStage, prev)
			prev = s.CurrentStage
		}
		assert.Equal(t, MaxStage, s.CurrentStage)
		assert.Equal(t, 100, s.Progress())
		assert.True(t, s.AllStagesSealed())
	})
}

func TestUnsealStage(t *testing.T) {
	s := New("alice", "p")
	seal(t, s, 1)
	require.Equal(t, 2, s.CurrentStage)

	s.UnsealStage(1)

	assert.False(t, s.IsSealed(1))
	assert.Equal(t, 1, s.CurrentStage)
	// The rolled-back transition is repeatable.
	require.NoError(t, s.SealStage(1))
	assert.Equal(t, 2, s.CurrentStage)
}

func TestRemediation(t *testing.T) {
	t.Run("reopen allows corrections without moving current stage", func(t *testing.T) {
		s := New("alice", "p")
		sealAll(t, s)

		require.NoError(t, s.ReopenForRemediation([]int{1, 2}))
		assert.Equal(t, []int{1, 2}, s.RemediationStages())
		assert.True(t, s.InRemediation())
		assert.Equal(t, MaxStage, s.CurrentStage)

		require.NoError(t, s.MergeStageData(1, Deliverable{"field": "corrected"}))
		require.NoError(t, s.ResealStage(1))
		assert.Equal(t, []int{2}, s.RemediationStages())

		require.NoError(t, s.ResealStage(2))
		assert.False(t, s.InRemediation())
	})

	t.Run("reopen rejects ungated stage", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)
		err := s.ReopenForRemediation([]int{3})
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.SESSION_STAGE_ORDER))
	})

	t.Run("clear fields requires open remediation", func(t *testing.T) {
		s := New("alice", "p")
		sealAll(t, s)

		err := s.ClearStageFields(1, []string{"field"})
		require.Error(t, err)

		require.NoError(t, s.ReopenForRemediation([]int{1}))
		require.NoError(t, s.ClearStageFields(1, []string{"field"}))
		assert.False(t, s.Deliverable(1).Has("field"))
	})

	t.Run("reseal rejects stage not in remediation", func(t *testing.T) {
		s := New("alice", "p")
		sealAll(t, s)
		assert.Error(t, s.ResealStage(3))
	})
}

func TestLifecycle(t *testing.T) {
	t.Run("abandon from any non-terminal state", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)
		require.NoError(t, s.Abandon())
		assert.Equal(t, StatusAbandoned, s.Status)

		err := s.Abandon()
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.SESSION_ALREADY_CLOSED))
	})

	t.Run("complete requires all stages gated", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)
		assert.Error(t, s.Complete())

		for stage := 2; stage <= MaxStage; stage++ {
			seal(t, s, stage)
		}
		require.NoError(t, s.Complete())
		assert.Equal(t, StatusCompleted, s.Status)
		require.NotNil(t, s.CompletedAt)
	})

	t.Run("status json round trip", func(t *testing.T) {
		for _, st := range []Status{StatusActive, StatusCompleted, StatusAbandoned} {
			assert.True(t, st.IsValid())
		}
		assert.False(t, Status("paused").IsValid())
		assert.True(t, StatusCompleted.IsTerminal())
		assert.True(t, StatusAbandoned.IsTerminal())
		assert.False(t, StatusActive.IsTerminal())
	})
}

func TestSnapshotAndRestore(t *testing.T) {
	t.Run("snapshot is a copy bounded by stage", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)
		seal(t, s, 2)
		require.NoError(t, s.MergeStageData(3, Deliverable{"partial": "yes"}))

		snap := s.Snapshot(2)
		assert.Len(t, snap, 2)

		snap[1]["field"] = "mutated"
		assert.Equal(t, "value", s.Deliverable(1).GetString("field"))
	})

	t.Run("restore marks stages gated and positions the next stage", func(t *testing.T) {
		snap := map[int]Deliverable{
			1: {"field": "a"},
			2: {"field": "b"},
		}
		s, err := Restore(types.NewID(), "alice", "p", 2, snap, time.Now().UTC())
		require.NoError(t, err)

		assert.Equal(t, 3, s.CurrentStage)
		assert.True(t, s.IsSealed(1))
		assert.True(t, s.IsSealed(2))
		assert.False(t, s.IsSealed(3))
		assert.Equal(t, 40, s.Progress())
	})

	t.Run("restore at final stage stays at final stage", func(t *testing.T) {
		snap := map[int]Deliverable{1: {}, 2: {}, 3: {}, 4: {}, 5: {}}
		s, err := Restore(types.NewID(), "alice", "p", MaxStage, snap, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, MaxStage, s.CurrentStage)
		assert.True(t, s.AllStagesSealed())
	})

	t.Run("restore rejects out-of-range checkpoint stage", func(t *testing.T) {
		_, err := Restore(types.NewID(), "alice", "p", 0, nil, time.Now().UTC())
		require.Error(t, err)
		var gerr *types.GreenlightError
		require.True(t, errors.As(err, &gerr))
		assert.Equal(t, types.SESSION_STAGE_ORDER, gerr.Code)
	})
}

func TestCollectingState(t *testing.T) {
	t.Run("partial current stage is reported", func(t *testing.T) {
		s := New("alice", "p")
		require.NoError(t, s.MergeStageData(1, Deliverable{"field": "value"}))

		rem, data := s.CollectingState()
		assert.Empty(t, rem)
		require.Len(t, data, 1)
		assert.Equal(t, "value", data[1].GetString("field"))

		// The copy is independent of the live deliverable.
		data[1]["field"] = "mutated"
		assert.Equal(t, "value", s.Deliverable(1).GetString("field"))
	})

	t.Run("nothing to report right after a seal", func(t *testing.T) {
		s := New("alice", "p")
		seal(t, s, 1)

		rem, data := s.CollectingState()
		assert.Empty(t, rem)
		assert.Empty(t, data)
	})

	t.Run("remediation reports the full working snapshot", func(t *testing.T) {
		s := New("alice", "p")
		sealAll(t, s)
		require.NoError(t, s.ReopenForRemediation([]int{2}))
		require.NoError(t, s.ClearStageFields(2, []string{"field"}))

		rem, data := s.CollectingState()
		assert.Equal(t, []int{2}, rem)
		assert.Len(t, data, MaxStage)
		assert.False(t, data[2].Has("field"))
		assert.True(t, data[1].Has("field"))
	})
}

func TestRestoreCollecting(t *testing.T) {
	fullSnap := func() map[int]Deliverable {
		snap := make(map[int]Deliverable, MaxStage)
		for stage := MinStage; stage <= MaxStage; stage++ {
			snap[stage] = Deliverable{"field": "checkpointed"}
		}
		return snap
	}

	t.Run("current stage data overlays a fresh session", func(t *testing.T) {
		s := New("alice", "p")
		require.NoError(t, s.RestoreCollecting(nil, map[int]Deliverable{
			1: {"field": "persisted"},
		}))
		assert.Equal(t, "persisted", s.Deliverable(1).GetString("field"))
	})

	t.Run("stale non-current data is dropped", func(t *testing.T) {
		s, err := Restore(types.NewID(), "alice", "p", 2, fullSnap(), time.Now().UTC())
		require.NoError(t, err)

		require.NoError(t, s.RestoreCollecting(nil, map[int]Deliverable{
			1: {"field": "stale"},
			3: {"field": "in progress"},
		}))
		assert.Equal(t, "checkpointed", s.Deliverable(1).GetString("field"),
			"a sealed stage keeps its checkpointed data")
		assert.Equal(t, "in progress", s.Deliverable(3).GetString("field"))
	})

	t.Run("remediation set re-opens stages and replaces their data", func(t *testing.T) {
		s, err := Restore(types.NewID(), "alice", "p", MaxStage, fullSnap(), time.Now().UTC())
		require.NoError(t, err)

		working := fullSnap()
		working[1] = Deliverable{"field": "corrected"}
		delete(working[2], "field")
		require.NoError(t, s.RestoreCollecting([]int{2}, working))

		assert.Equal(t, []int{2}, s.RemediationStages())
		assert.Equal(t, "corrected", s.Deliverable(1).GetString("field"),
			"a resealed correction not yet checkpointed is restored")
		assert.False(t, s.Deliverable(2).Has("field"))
	})

	t.Run("remediation of an ungated stage fails closed", func(t *testing.T) {
		s := New("alice", "p")
		err := s.RestoreCollecting([]int{2}, nil)
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.SESSION_STAGE_ORDER))
	})
}

func TestDeliverable(t *testing.T) {
	t.Run("empty string counts as absent", func(t *testing.T) {
		d := Deliverable{"a": "x", "b": "", "c": 3}
		assert.True(t, d.Has("a"))
		assert.False(t, d.Has("b"))
		assert.True(t, d.Has("c"))
		assert.False(t, d.Has("missing"))
	})

	t.Run("clone is independent", func(t *testing.T) {
		d := Deliverable{"a": "x"}
		c := d.Clone()
		c["a"] = "y"
		assert.Equal(t, "x", d.GetString("a"))
	})
}
