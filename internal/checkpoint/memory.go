package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iffystrayer/greenlight/internal/database"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// MemoryStore implements Store with in-process storage. It exists for tests
// and ephemeral runs; it honors the same encode/digest/verify path as the
// SQLite store so integrity behavior is identical.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[types.ID][]database.CheckpointRecord
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[types.ID][]database.CheckpointRecord),
	}
}

// Put encodes, digests, and stores a snapshot.
func (s *MemoryStore) Put(ctx context.Context, sessionID types.ID, stage int, snapshot map[int]session.Deliverable) (types.ID, error) {
	data, err := EncodeSnapshot(sessionID, stage, snapshot)
	if err != nil {
		return "", types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to encode snapshot", err)
	}

	rec := database.CheckpointRecord{
		ID:        types.NewID(),
		SessionID: sessionID,
		Stage:     stage,
		Snapshot:  data,
		Digest:    ComputeDigest(data),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	// Prepend: newest first, matching the DAO's ordering contract.
	s.records[sessionID] = append([]database.CheckpointRecord{rec}, s.records[sessionID]...)
	s.mu.Unlock()

	return rec.ID, nil
}

// GetLatestVerified returns the newest checkpoint after digest verification.
func (s *MemoryStore) GetLatestVerified(ctx context.Context, sessionID types.ID) (*Checkpoint, error) {
	s.mu.RLock()
	records := s.records[sessionID]
	s.mu.RUnlock()

	if len(records) == 0 {
		return nil, types.NewError(types.CHECKPOINT_NOT_FOUND,
			fmt.Sprintf("no checkpoints for session %s", sessionID))
	}
	return decodeVerified(&records[0])
}

// GetLatestValid returns the newest checkpoint that passes verification.
func (s *MemoryStore) GetLatestValid(ctx context.Context, sessionID types.ID) (*Checkpoint, error) {
	s.mu.RLock()
	records := s.records[sessionID]
	s.mu.RUnlock()

	if len(records) == 0 {
		return nil, types.NewError(types.CHECKPOINT_NOT_FOUND,
			fmt.Sprintf("no checkpoints for session %s", sessionID))
	}

	var lastErr error
	for i := range records {
		cp, err := decodeVerified(&records[i])
		if err != nil {
			lastErr = err
			continue
		}
		return cp, nil
	}
	return nil, types.WrapError(types.CHECKPOINT_CORRUPT,
		fmt.Sprintf("all %d checkpoints for session %s failed verification", len(records), sessionID),
		lastErr)
}

// Corrupt flips one byte of the stored snapshot for the given checkpoint ID.
// Test helper for exercising the fail-closed resume path.
func (s *MemoryStore) Corrupt(checkpointID types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionID, records := range s.records {
		for i := range records {
			if records[i].ID == checkpointID {
				tampered := make([]byte, len(records[i].Snapshot))
				copy(tampered, records[i].Snapshot)
				if len(tampered) > 0 {
					tampered[len(tampered)/2] ^= 0xFF
				}
				s.records[sessionID][i].Snapshot = tampered
				return true
			}
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
