package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pacer/internal/domain"
)

const sessionColumns = `id, user_id, started_ns, ended_ns, active, summary, dirty, revision`

// CreateSession inserts a new session and marks it dirty.
// Returns domain.ErrActiveSessionExists if s is active and the user already
// has an active session.
func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	summary, err := marshalSummary(sess.Summary)
	if err != nil {
		return domain.NewStorageError("create session", err)
	}

	var ended any
	if sess.EndedAt != nil {
		ended = toNanos(*sess.EndedAt)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, started_ns, ended_ns, active, summary, dirty, revision)
		VALUES (?, ?, ?, ?, ?, ?, 1, 1)
	`,
		sess.ID,
		sess.UserID,
		toNanos(sess.StartedAt),
		ended,
		boolToInt(sess.Active),
		summary,
	)
	if err != nil {
		if isUniqueViolation(err) && sess.Active {
			return fmt.Errorf("create session: %w", domain.ErrActiveSessionExists)
		}
		return domain.NewStorageError("create session", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.NewNotFound(domain.KindSession, id)
	}
	if err != nil {
		return domain.Session{}, domain.NewStorageError("get session", err)
	}
	return sess, nil
}

// ActiveSession returns the user's active session, or
// domain.ErrNoActiveSession if there is none.
func (s *Store) ActiveSession(ctx context.Context, userID string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = ? AND active = 1
	`, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, domain.NewStorageError("active session", err)
	}
	return sess, nil
}

// ListSessions returns the user's sessions ordered by start time.
// Returns an empty slice (not nil) if the user has no sessions.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = ?
		ORDER BY started_ns ASC, id COLLATE BINARY ASC
	`, userID)
	if err != nil {
		return nil, domain.NewStorageError("list sessions", err)
	}
	return collectSessions(rows)
}

// EndSession closes an active session and caches its summary.
// Returns domain.ErrSessionEnded if the session is already closed.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time, summary domain.SessionSummary) error {
	data, err := marshalSummary(&summary)
	if err != nil {
		return domain.NewStorageError("end session", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_ns = ?, active = 0, summary = ?, dirty = 1, revision = revision + 1
		WHERE id = ? AND active = 1
	`, toNanos(endedAt), data, id)
	if err != nil {
		return domain.NewStorageError("end session", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("end session", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing updated: distinguish a missing session from an ended one.
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("end session %s: %w", id, domain.ErrSessionEnded)
}

// UpdateSummary replaces the cached summary of an ended session after a
// retroactive edit to its events, and marks the session dirty.
func (s *Store) UpdateSummary(ctx context.Context, id string, summary domain.SessionSummary) error {
	data, err := marshalSummary(&summary)
	if err != nil {
		return domain.NewStorageError("update summary", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET summary = ?, dirty = 1, revision = revision + 1
		WHERE id = ?
	`, data, id)
	if err != nil {
		return domain.NewStorageError("update summary", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("update summary", err)
	}
	if n == 0 {
		return domain.NewNotFound(domain.KindSession, id)
	}
	return nil
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		sess    domain.Session
		started int64
		ended   sql.NullInt64
		active  int
		summary sql.NullString
		dirty   int
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &started, &ended, &active, &summary, &dirty, &sess.Revision); err != nil {
		return domain.Session{}, err
	}

	sess.StartedAt = fromNanos(started)
	if ended.Valid {
		t := fromNanos(ended.Int64)
		sess.EndedAt = &t
	}
	sess.Active = active == 1
	sess.Dirty = dirty == 1

	if summary.Valid {
		parsed, err := unmarshalSummary(&summary.String)
		if err != nil {
			return domain.Session{}, err
		}
		sess.Summary = parsed
	}
	return sess, nil
}

func collectSessions(rows *sql.Rows) ([]domain.Session, error) {
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan session", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate sessions", err)
	}
	return sessions, nil
}
