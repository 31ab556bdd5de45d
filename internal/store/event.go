package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pacer/internal/domain"
)

const eventColumns = `id, session_id, ts_ns, kind, weight, volume, preset_id, label, source, dirty, revision`

// AppendEvent inserts an event and marks it (and nothing else) dirty.
// The owning session must exist.
func (s *Store) AppendEvent(ctx context.Context, ev domain.Event) (string, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1)
	`,
		ev.ID,
		ev.SessionID,
		toNanos(ev.Timestamp),
		string(ev.Kind),
		ev.Weight,
		ev.Volume,
		ev.PresetID,
		ev.Label,
		string(ev.Source),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return "", domain.NewNotFound(domain.KindSession, ev.SessionID)
		}
		if isUniqueViolation(err) {
			return "", &domain.Error{
				Code:    domain.CodeConstraint,
				Op:      "append event",
				Message: fmt.Sprintf("event %q already exists", ev.ID),
			}
		}
		return "", domain.NewStorageError("append event", err)
	}
	return ev.ID, nil
}

// GetEvent returns an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.NewNotFound(domain.KindEvent, id)
	}
	if err != nil {
		return domain.Event{}, domain.NewStorageError("get event", err)
	}
	return ev, nil
}

// DeleteEvent hard-deletes an event and returns the removed row so the
// caller can recompute its session. No tombstone is kept.
func (s *Store) DeleteEvent(ctx context.Context, id string) (domain.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, domain.NewStorageError("delete event", err)
	}
	defer tx.Rollback() // No-op if committed

	ev, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.NewNotFound(domain.KindEvent, id)
	}
	if err != nil {
		return domain.Event{}, domain.NewStorageError("delete event", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return domain.Event{}, domain.NewStorageError("delete event", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Event{}, domain.NewStorageError("delete event", err)
	}
	return ev, nil
}

// ReplaceEvent swaps an event's payload in place. The id and timestamp are
// preserved; the event is marked dirty and its revision bumped.
func (s *Store) ReplaceEvent(ctx context.Context, id string, payload domain.Payload) (domain.Event, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET kind = ?, weight = ?, volume = ?, preset_id = ?, label = ?,
		    dirty = 1, revision = revision + 1
		WHERE id = ?
	`,
		string(payload.Kind),
		payload.Weight,
		payload.Volume,
		payload.PresetID,
		payload.Label,
		id,
	)
	if err != nil {
		return domain.Event{}, domain.NewStorageError("replace event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Event{}, domain.NewStorageError("replace event", err)
	}
	if n == 0 {
		return domain.Event{}, domain.NewNotFound(domain.KindEvent, id)
	}
	return s.GetEvent(ctx, id)
}

// EventsFor returns all events of a session ordered by (timestamp, id).
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) EventsFor(ctx context.Context, sessionID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE session_id = ?
		ORDER BY ts_ns ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, domain.NewStorageError("events for session", err)
	}
	return collectEvents(rows)
}

// LastEventTime returns the timestamp of the latest event in a session.
// ok is false when the session has no events.
func (s *Store) LastEventTime(ctx context.Context, sessionID string) (ts time.Time, ok bool, err error) {
	var latest sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MAX(ts_ns) FROM events WHERE session_id = ?`, sessionID).Scan(&latest)
	if err != nil {
		return time.Time{}, false, domain.NewStorageError("last event time", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return fromNanos(latest.Int64), true, nil
}

func scanEvent(row scanner) (domain.Event, error) {
	var (
		ev    domain.Event
		ts    int64
		kind  string
		src   string
		dirty int
	)
	err := row.Scan(
		&ev.ID,
		&ev.SessionID,
		&ts,
		&kind,
		&ev.Weight,
		&ev.Volume,
		&ev.PresetID,
		&ev.Label,
		&src,
		&dirty,
		&ev.Revision,
	)
	if err != nil {
		return domain.Event{}, err
	}
	ev.Timestamp = fromNanos(ts)
	ev.Kind = domain.EventKind(kind)
	ev.Source = domain.Source(src)
	ev.Dirty = dirty == 1
	return ev, nil
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate events", err)
	}
	return events, nil
}
