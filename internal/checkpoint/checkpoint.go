// Package checkpoint defines durable, integrity-verified snapshots of
// interview progress and the store contract for persisting them. A checkpoint
// is written immediately after each successful stage gate and is the sole
// restore source for resume.
package checkpoint

import (
	"time"

	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// Checkpoint is a durable, verifiable snapshot of a session at a stage
// boundary. Never mutated after creation.
type Checkpoint struct {
	// ID is the unique identifier for this checkpoint
	ID types.ID `json:"id"`

	// SessionID is a non-owning back-reference to the session
	SessionID types.ID `json:"session_id"`

	// Stage is the stage number the checkpoint was taken after
	Stage int `json:"stage"`

	// Snapshot holds stage data up to and including Stage
	Snapshot map[int]session.Deliverable `json:"snapshot"`

	// Digest is the integrity digest computed over the encoded snapshot.
	// It must match a freshly computed digest before the checkpoint is
	// accepted as a restore source.
	Digest string `json:"digest"`

	// CreatedAt is the checkpoint creation timestamp
	CreatedAt time.Time `json:"created_at"`
}
