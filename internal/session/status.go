package session

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle status of an interview session.
type Status string

const (
	// StatusActive indicates the interview is in progress
	StatusActive Status = "active"
	// StatusCompleted indicates the interview finished and the artifact was produced
	StatusCompleted Status = "completed"
	// StatusAbandoned indicates the interview was explicitly abandoned
	StatusAbandoned Status = "abandoned"
)

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAbandoned:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal state.
// Terminal sessions accept no further stage mutation.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := Status(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid session status: %s", str)
	}

	*s = status
	return nil
}
