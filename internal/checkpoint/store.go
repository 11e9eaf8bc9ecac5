package checkpoint

import (
	"context"
	"fmt"

	"github.com/iffystrayer/greenlight/internal/database"
	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// Store is the durable checkpoint persistence contract. Put must guarantee
// durability before returning success: a nil error means the checkpoint will
// survive a crash.
type Store interface {
	// Put encodes, digests, and durably persists a snapshot taken after the
	// given stage. Returns the new checkpoint's ID.
	Put(ctx context.Context, sessionID types.ID, stage int, snapshot map[int]session.Deliverable) (types.ID, error)

	// GetLatestVerified returns the most recent checkpoint for the session,
	// verifying its digest first. A digest mismatch on the most recent
	// checkpoint fails closed with CHECKPOINT_CORRUPT; it never silently
	// falls back to older data.
	GetLatestVerified(ctx context.Context, sessionID types.ID) (*Checkpoint, error)

	// GetLatestValid returns the most recent checkpoint whose digest
	// verifies, skipping corrupted ones. This is the explicit fallback path
	// after GetLatestVerified reported corruption; the caller opts into
	// losing the corrupted stages.
	GetLatestValid(ctx context.Context, sessionID types.ID) (*Checkpoint, error)
}

// SQLiteStore implements Store over the SQLite session DAO.
type SQLiteStore struct {
	dao database.SessionDAO
}

// NewSQLiteStore creates a checkpoint store backed by the given DAO.
func NewSQLiteStore(dao database.SessionDAO) *SQLiteStore {
	return &SQLiteStore{dao: dao}
}

// Put encodes the snapshot, computes its digest, and inserts the checkpoint
// row. SQLite in WAL mode makes the insert durable before ExecContext
// returns, satisfying the durability contract.
func (s *SQLiteStore) Put(ctx context.Context, sessionID types.ID, stage int, snapshot map[int]session.Deliverable) (types.ID, error) {
	data, err := EncodeSnapshot(sessionID, stage, snapshot)
	if err != nil {
		return "", types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to encode snapshot", err)
	}

	rec := &database.CheckpointRecord{
		ID:        types.NewID(),
		SessionID: sessionID,
		Stage:     stage,
		Snapshot:  data,
		Digest:    ComputeDigest(data),
	}
	if err := s.dao.InsertCheckpoint(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// GetLatestVerified returns the most recent checkpoint after digest
// verification, failing closed on mismatch.
func (s *SQLiteStore) GetLatestVerified(ctx context.Context, sessionID types.ID) (*Checkpoint, error) {
	records, err := s.dao.ListCheckpoints(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, types.NewError(types.CHECKPOINT_NOT_FOUND,
			fmt.Sprintf("no checkpoints for session %s", sessionID))
	}

	return decodeVerified(&records[0])
}

// GetLatestValid returns the most recent checkpoint that passes digest
// verification, skipping corrupted rows.
func (s *SQLiteStore) GetLatestValid(ctx context.Context, sessionID types.ID) (*Checkpoint, error) {
	records, err := s.dao.ListCheckpoints(ctx, sessionID)
	if err != nil {
		return nil, err
	}
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

// decodeVerified validates a record's digest and decodes its snapshot.
func decodeVerified(rec *database.CheckpointRecord) (*Checkpoint, error) {
	if err := ValidateDigest(rec.Snapshot, rec.Digest); err != nil {
		return nil, types.WrapError(types.CHECKPOINT_CORRUPT,
			fmt.Sprintf("checkpoint %s failed integrity verification", rec.ID), err)
	}

	sessionID, stage, snapshot, err := DecodeSnapshot(rec.Snapshot)
	if err != nil {
		return nil, types.WrapError(types.CHECKPOINT_DECODE_FAILED,
			fmt.Sprintf("checkpoint %s failed to decode", rec.ID), err)
	}
	if sessionID != rec.SessionID || stage != rec.Stage {
		return nil, types.NewError(types.CHECKPOINT_CORRUPT,
			fmt.Sprintf("checkpoint %s envelope does not match its row (session %s/%s, stage %d/%d)",
				rec.ID, sessionID, rec.SessionID, stage, rec.Stage))
	}

	return &Checkpoint{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Stage:     rec.Stage,
		Snapshot:  snapshot,
		Digest:    rec.Digest,
		CreatedAt: rec.CreatedAt,
	}, nil
}

var _ Store = (*SQLiteStore)(nil)
