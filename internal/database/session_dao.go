package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iffystrayer/greenlight/internal/types"
)

// SessionRecord is the persisted form of an interview session's identity and
// position. Gated stage deliverables travel inside checkpoint snapshots, which
// remain the durable source of truth for resume; the record carries what the
// checkpoints cannot: answers still being collected for an ungated stage, the
// remediation set with its working data, the retry counter for the pending
// question, and the duress audit for the final artifact.
type SessionRecord struct {
	ID           types.ID `db:"id" json:"id"`
	OwnerID      string   `db:"owner_id" json:"owner_id"`
	ProjectLabel string   `db:"project_label" json:"project_label"`
	CurrentStage int      `db:"current_stage" json:"current_stage"`
	Status       string   `db:"status" json:"status"`

	// StageData is a JSON map of stage number to in-progress deliverable.
	// Empty once the data it held is covered by a checkpoint.
	StageData []byte `db:"stage_data" json:"stage_data,omitempty"`

	// Remediation is a JSON array of stage numbers open for remediation
	Remediation []byte `db:"remediation" json:"remediation,omitempty"`

	// AttemptStage/AttemptField/Attempts persist the retry counter for the
	// question being answered, so the bounded-attempt guarantee holds
	// across restarts
	AttemptStage int    `db:"attempt_stage" json:"attempt_stage,omitempty"`
	AttemptField string `db:"attempt_field" json:"attempt_field,omitempty"`
	Attempts     int    `db:"attempts" json:"attempts,omitempty"`

	// DuressLog is a JSON array of force-accepted responses feeding the
	// final artifact's quality audit
	DuressLog []byte `db:"duress_log" json:"duress_log,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// CheckpointRecord is the persisted form of a checkpoint: an opaque snapshot
// blob plus its integrity digest. Never mutated after creation.
type CheckpointRecord struct {
	ID        types.ID  `db:"id" json:"id"`
	SessionID types.ID  `db:"session_id" json:"session_id"`
	Stage     int       `db:"stage" json:"stage"`
	Snapshot  []byte    `db:"snapshot" json:"snapshot"`
	Digest    string    `db:"digest" json:"digest"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionDAO provides database operations for sessions and their checkpoints.
type SessionDAO interface {
	// Sessions
	CreateSession(ctx context.Context, rec *SessionRecord) error
	UpdateSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id types.ID) (*SessionRecord, error)
	ListSessionsByOwner(ctx context.Context, ownerID string) ([]SessionRecord, error)

	// Checkpoints
	InsertCheckpoint(ctx context.Context, rec *CheckpointRecord) error
	ListCheckpoints(ctx context.Context, sessionID types.ID) ([]CheckpointRecord, error)
}

// sessionDAO implements SessionDAO.
type sessionDAO struct {
	db *DB
}

// NewSessionDAO creates a new SessionDAO instance.
func NewSessionDAO(db *DB) SessionDAO {
	return &sessionDAO{db: db}
}

// CreateSession inserts a new session record.
func (d *sessionDAO) CreateSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ID.IsZero() {
		rec.ID = types.NewID()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	query := `
	INSERT INTO sessions (id, owner_id, project_label, current_stage, status,
		stage_data, remediation, attempt_stage, attempt_field, attempts, duress_log,
		created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		rec.ID.String(), rec.OwnerID, rec.ProjectLabel, rec.CurrentStage, rec.Status,
		rec.StageData, rec.Remediation, rec.AttemptStage, rec.AttemptField, rec.Attempts, rec.DuressLog,
		rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create session", err)
	}
	return nil
}

// UpdateSession updates a session's mutable columns.
func (d *sessionDAO) UpdateSession(ctx context.Context, rec *SessionRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	query := `
	UPDATE sessions
	SET current_stage = ?, status = ?, stage_data = ?, remediation = ?,
		attempt_stage = ?, attempt_field = ?, attempts = ?, duress_log = ?,
		updated_at = ?, completed_at = ?
	WHERE id = ?`

	result, err := d.db.ExecContext(ctx, query,
		rec.CurrentStage, rec.Status, rec.StageData, rec.Remediation,
		rec.AttemptStage, rec.AttemptField, rec.Attempts, rec.DuressLog,
		rec.UpdatedAt, rec.CompletedAt, rec.ID.String(),
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to update session", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to check update result", err)
	}
	if rows == 0 {
		return types.NewError(types.SESSION_NOT_FOUND,
			fmt.Sprintf("session %s not found", rec.ID))
	}
	return nil
}

// GetSession retrieves a session record by ID.
func (d *sessionDAO) GetSession(ctx context.Context, id types.ID) (*SessionRecord, error) {
	query := `
	SELECT id, owner_id, project_label, current_stage, status,
		stage_data, remediation, attempt_stage, attempt_field, attempts, duress_log,
		created_at, updated_at, completed_at
	FROM sessions WHERE id = ?`

	var rec SessionRecord
	var idStr string
	err := d.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &rec.OwnerID, &rec.ProjectLabel, &rec.CurrentStage, &rec.Status,
		&rec.StageData, &rec.Remediation, &rec.AttemptStage, &rec.AttemptField, &rec.Attempts, &rec.DuressLog,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.SESSION_NOT_FOUND,
			fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get session", err)
	}
	rec.ID = types.ID(idStr)
	return &rec, nil
}

// ListSessionsByOwner lists sessions for an owner, newest first.
func (d *sessionDAO) ListSessionsByOwner(ctx context.Context, ownerID string) ([]SessionRecord, error) {
	query := `
	SELECT id, owner_id, project_label, current_stage, status,
		stage_data, remediation, attempt_stage, attempt_field, attempts, duress_log,
		created_at, updated_at, completed_at
	FROM sessions WHERE owner_id = ? ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list sessions", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var idStr string
		if err := rows.Scan(
			&idStr, &rec.OwnerID, &rec.ProjectLabel, &rec.CurrentStage, &rec.Status,
			&rec.StageData, &rec.Remediation, &rec.AttemptStage, &rec.AttemptField, &rec.Attempts, &rec.DuressLog,
			&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
		); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan session row", err)
		}
		rec.ID = types.ID(idStr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to iterate session rows", err)
	}
	return records, nil
}

// InsertCheckpoint persists a checkpoint record. The row is durable when this
// returns nil; checkpoint rows are never updated or deleted.
func (d *sessionDAO) InsertCheckpoint(ctx context.Context, rec *CheckpointRecord) error {
	if rec.ID.IsZero() {
		rec.ID = types.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO checkpoints (id, session_id, stage, snapshot, digest, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		rec.ID.String(), rec.SessionID.String(), rec.Stage,
		rec.Snapshot, rec.Digest, rec.CreatedAt,
	)
	if err != nil {
		return types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to insert checkpoint", err)
	}
	return nil
}

// ListCheckpoints lists all checkpoints for a session, newest first.
func (d *sessionDAO) ListCheckpoints(ctx context.Context, sessionID types.ID) ([]CheckpointRecord, error) {
	query := `
	SELECT id, session_id, stage, snapshot, digest, created_at
	FROM checkpoints WHERE session_id = ?
	ORDER BY created_at DESC, stage DESC`

	rows, err := d.db.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list checkpoints", err)
	}
	defer rows.Close()

	var records []CheckpointRecord
	for rows.Next() {
		var rec CheckpointRecord
		var idStr, sessionStr string
		if err := rows.Scan(
			&idStr, &sessionStr, &rec.Stage, &rec.Snapshot, &rec.Digest, &rec.CreatedAt,
		); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan checkpoint row", err)
		}
		rec.ID = types.ID(idStr)
		rec.SessionID = types.ID(sessionStr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to iterate checkpoint rows", err)
	}
	return records, nil
}
