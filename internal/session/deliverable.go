package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Deliverable is the structured data artifact collected for one stage.
// Keys are stage-defined field names; values are the extracted answers.
// Key order is irrelevant; keys are unique by construction of the map.
type Deliverable map[string]any

// Clone returns a shallow copy of the deliverable.
// Values are assumed to be immutable once recorded.
func (d Deliverable) Clone() Deliverable {
	if d == nil {
		return nil
	}
	out := make(Deliverable, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Has reports whether the field is present with a non-empty value.
// Empty strings and nil values count as absent.
func (d Deliverable) Has(field string) bool {
	v, ok := d[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// GetString returns the field value as a string, or "" if absent or not a string.
func (d Deliverable) GetString(field string) string {
	if v, ok := d[field].(string); ok {
		return v
	}
	return ""
}

// Merge copies all fields from other into d, overwriting existing keys.
func (d Deliverable) Merge(other Deliverable) {
	for k, v := range other {
		d[k] = v
	}
}

// MarshalText serializes the deliverable as indented JSON for prompt embedding.
func (d Deliverable) MarshalText() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal deliverable: %w", err)
	}
	return string(data), nil
}
