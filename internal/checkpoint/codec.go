package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/iffystrayer/greenlight/internal/session"
	"github.com/iffystrayer/greenlight/internal/types"
)

// CodecVersion defines the version of the checkpoint serialization format.
// It is embedded in every snapshot so later software can detect and migrate
// older checkpoints.
const CodecVersion = 1

// envelope wraps the serialized snapshot with version and identity
// information for compatibility and integrity checking.
type envelope struct {
	// Version is the codec version used to serialize this snapshot
	Version int `json:"version"`

	// SessionID binds the snapshot to its session
	SessionID types.ID `json:"session_id"`

	// Stage is the stage the snapshot was taken after
	Stage int `json:"stage"`

	// Data holds the stage deliverables, keyed by stage number
	Data map[int]session.Deliverable `json:"data"`
}

// EncodeSnapshot serializes a stage-data snapshot to JSON bytes wrapped in a
// versioned envelope. The byte encoding is the digest input, so it must stay
// deterministic for a given snapshot (encoding/json sorts map keys).
func EncodeSnapshot(sessionID types.ID, stage int, snapshot map[int]session.Deliverable) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot cannot be nil")
	}

	env := envelope{
		Version:   CodecVersion,
		SessionID: sessionID,
		Stage:     stage,
		Data:      snapshot,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot deserializes snapshot bytes, validating the codec version.
func DecodeSnapshot(data []byte) (sessionID types.ID, stage int, snapshot map[int]session.Deliverable, err error) {
	if len(data) == 0 {
		return "", 0, nil, fmt.Errorf("snapshot data cannot be empty")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", 0, nil, fmt.Errorf("failed to unmarshal snapshot envelope: %w", err)
	}

	if env.Version > CodecVersion {
		return "", 0, nil, fmt.Errorf("snapshot version %d is newer than supported version %d",
			env.Version, CodecVersion)
	}
	if env.Version < 1 {
		return "", 0, nil, fmt.Errorf("snapshot version %d is not supported (minimum version 1)", env.Version)
	}
	if env.Data == nil {
		return "", 0, nil, fmt.Errorf("snapshot data field is nil")
	}

	return env.SessionID, env.Stage, env.Data, nil
}

// ComputeDigest computes a SHA256 digest of the encoded snapshot for
// integrity verification. Returned as a hexadecimal string.
func ComputeDigest(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ValidateDigest validates that the computed digest of the data matches the
// expected digest. Returns nil if they match.
func ValidateDigest(data []byte, expected string) error {
	if len(expected) == 0 {
		return fmt.Errorf("expected digest cannot be empty")
	}
	if len(data) == 0 {
		return fmt.Errorf("snapshot data cannot be empty")
	}

	computed := ComputeDigest(data)
	if computed != expected {
		return fmt.Errorf("digest mismatch: expected %s, got %s", expected, computed)
	}
	return nil
}
