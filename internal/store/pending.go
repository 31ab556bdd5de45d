package store

import (
	"context"
	"fmt"

	"github.com/roach88/pacer/internal/domain"
)

// Pending returns all dirty records of one kind, ordered so parents sort
// before children: sessions by start time, events by timestamp, presets by
// creation time. Ties are broken by id.
func (s *Store) Pending(ctx context.Context, kind domain.RecordKind) ([]domain.Envelope, error) {
	envelopes := []domain.Envelope{}

	switch kind {
	case domain.KindSession:
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+sessionColumns+`
			FROM sessions
			WHERE dirty = 1
			ORDER BY started_ns ASC, id COLLATE BINARY ASC
		`)
		if err != nil {
			return nil, domain.NewStorageError("pending sessions", err)
		}
		sessions, err := collectSessions(rows)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			envelopes = append(envelopes, domain.SessionEnvelope(sess))
		}

	case domain.KindEvent:
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+eventColumns+`
			FROM events
			WHERE dirty = 1
			ORDER BY ts_ns ASC, id COLLATE BINARY ASC
		`)
		if err != nil {
			return nil, domain.NewStorageError("pending events", err)
		}
		events, err := collectEvents(rows)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			envelopes = append(envelopes, domain.EventEnvelope(ev))
		}

	case domain.KindPreset:
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+presetColumns+`
			FROM presets
			WHERE dirty = 1
			ORDER BY created_ns ASC, id COLLATE BINARY ASC
		`)
		if err != nil {
			return nil, domain.NewStorageError("pending presets", err)
		}
		presets, err := collectPresets(rows)
		if err != nil {
			return nil, err
		}
		for _, p := range presets {
			envelopes = append(envelopes, domain.PresetEnvelope(p))
		}

	default:
		return nil, domain.NewInvalidInput("kind", fmt.Sprintf("unknown record kind %q", kind))
	}

	return envelopes, nil
}

// MarkClean clears the dirty flag of a pushed record, but only if its
// revision still equals the revision that was pushed. Returns false when the
// record changed (or vanished) since the snapshot; it then stays dirty.
func (s *Store) MarkClean(ctx context.Context, kind domain.RecordKind, id string, revision int64) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET dirty = 0 WHERE id = ? AND revision = ? AND dirty = 1`,
		id, revision,
	)
	if err != nil {
		return false, domain.NewStorageError("mark clean", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewStorageError("mark clean", err)
	}
	return n > 0, nil
}

// PendingCount returns the number of dirty records across all kinds.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sessions WHERE dirty = 1) +
			(SELECT COUNT(*) FROM events WHERE dirty = 1) +
			(SELECT COUNT(*) FROM presets WHERE dirty = 1)
	`).Scan(&count)
	if err != nil {
		return 0, domain.NewStorageError("pending count", err)
	}
	return count, nil
}

// PurgeUser deletes every local record owned by a user in one transaction.
// Events go with their sessions through the cascade.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("purge user", err)
	}
	defer tx.Rollback() // No-op if committed

	statements := []string{
		`DELETE FROM sessions WHERE user_id = ?`,
		`DELETE FROM presets WHERE user_id = ?`,
		`DELETE FROM settings WHERE user_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return domain.NewStorageError("purge user", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("purge user", err)
	}
	return nil
}

func tableFor(kind domain.RecordKind) (string, error) {
	switch kind {
	case domain.KindSession:
		return "sessions", nil
	case domain.KindEvent:
		return "events", nil
	case domain.KindPreset:
		return "presets", nil
	default:
		return "", domain.NewInvalidInput("kind", fmt.Sprintf("unknown record kind %q", kind))
	}
}
