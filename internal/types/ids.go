package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID identifies sessions, checkpoints, and other identity-bearing records.
// It is a UUID in canonical string form, kept as a string so it travels
// through SQL parameters and JSON without conversion.
type ID string

// NewID returns a freshly generated random ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID validates s as a UUID and normalizes it to canonical form.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("ID cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID format: %w", err)
	}
	return ID(parsed.String()), nil
}

// Validate reports whether the ID holds a well-formed, non-empty UUID.
func (id ID) Validate() error {
	_, err := ParseID(string(id))
	return err
}

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// MarshalJSON encodes the ID as a JSON string, or null when unset.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON decodes and validates a JSON string. An empty string is
// accepted as the zero ID so optional fields round-trip.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal ID: %w", err)
	}
	if s == "" {
		*id = ""
		return nil
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
