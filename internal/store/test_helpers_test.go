package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pacer/internal/domain"
)

var baseTime = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession inserts an active session for user u-1.
func createTestSession(t *testing.T, s *Store, id string) domain.Session {
	t.Helper()
	sess := domain.Session{ID: id, UserID: "u-1", StartedAt: baseTime, Active: true}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

// createTestEvent builds a positive event offset from baseTime.
func createTestEvent(id, sessionID string, offset time.Duration) domain.Event {
	return domain.Event{
		ID:        id,
		SessionID: sessionID,
		Timestamp: baseTime.Add(offset),
		Payload:   domain.Payload{Kind: domain.EventPositive, Weight: domain.DefaultWeight},
		Source:    domain.SourcePhone,
	}
}
