package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/pacer/internal/domain"
)

// marshalSummary converts a session summary to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so labels round-trip verbatim.
func marshalSummary(summary *domain.SessionSummary) (any, error) {
	if summary == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(summary); err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalSummary parses a summary column, which may be NULL.
func unmarshalSummary(data *string) (*domain.SessionSummary, error) {
	if data == nil || *data == "" {
		return nil, nil
	}
	var summary domain.SessionSummary
	if err := json.Unmarshal([]byte(*data), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &summary, nil
}
