// Package postgres implements remote.Gateway on a Postgres database.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/remote"
)

//go:embed schema.sql
var schemaSQL string

// Gateway pushes records to Postgres with ON CONFLICT upserts.
type Gateway struct {
	pool *pgxpool.Pool
}

var _ remote.Gateway = (*Gateway)(nil)

// NewGateway constructs a Gateway.
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Connect creates a pool for the given URL. The pool dials lazily, so this
// succeeds while offline; failures surface on the first push.
func Connect(ctx context.Context, url string) (*Gateway, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, domain.NewInvalidInput("remote.postgres_url", err.Error())
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.NewUnreachable("connect", err)
	}
	return &Gateway{pool: pool}, nil
}

// Close releases the pool.
func (g *Gateway) Close() {
	g.pool.Close()
}

// Migrate creates the remote tables if they do not exist.
func (g *Gateway) Migrate(ctx context.Context) error {
	if _, err := g.pool.Exec(ctx, schemaSQL); err != nil {
		return classify("migrate", err)
	}
	return nil
}

// UpsertUser ensures the user row exists.
func (g *Gateway) UpsertUser(ctx context.Context, userID string) error {
	const query = `INSERT INTO users (id) VALUES ($1)
        ON CONFLICT (id) DO UPDATE SET updated_at = now()`

	if _, err := g.pool.Exec(ctx, query, userID); err != nil {
		return classify("upsert user", err)
	}
	return nil
}

// UpsertSession writes a session, replacing any previous version.
func (g *Gateway) UpsertSession(ctx context.Context, s domain.Session) (string, error) {
	const query = `INSERT INTO sessions (id, user_id, started_at, ended_at, active, summary, fingerprint)
        VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)
        ON CONFLICT (id) DO UPDATE SET
            started_at = excluded.started_at,
            ended_at = excluded.ended_at,
            active = excluded.active,
            summary = excluded.summary,
            fingerprint = excluded.fingerprint,
            updated_at = now()
        WHERE sessions.fingerprint IS DISTINCT FROM excluded.fingerprint`

	fp, err := domain.SessionEnvelope(s).Fingerprint()
	if err != nil {
		return "", domain.NewRejected("upsert session", err)
	}

	var summary *string
	if s.Summary != nil {
		data, err := json.Marshal(s.Summary)
		if err != nil {
			return "", domain.NewRejected("upsert session", err)
		}
		text := string(data)
		summary = &text
	}

	_, err = g.pool.Exec(ctx, query, s.ID, s.UserID, s.StartedAt, s.EndedAt, s.Active, summary, fp)
	if err != nil {
		return "", classify("upsert session", err)
	}
	return s.ID, nil
}

// UpsertEvent writes an event, replacing any previous payload.
func (g *Gateway) UpsertEvent(ctx context.Context, e domain.Event) (string, error) {
	const query = `INSERT INTO events (id, session_id, ts, kind, weight, volume, preset_id, label, source, fingerprint)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET
            ts = excluded.ts,
            kind = excluded.kind,
            weight = excluded.weight,
            volume = excluded.volume,
            preset_id = excluded.preset_id,
            label = excluded.label,
            source = excluded.source,
            fingerprint = excluded.fingerprint,
            updated_at = now()
        WHERE events.fingerprint IS DISTINCT FROM excluded.fingerprint`

	fp, err := domain.EventEnvelope(e).Fingerprint()
	if err != nil {
		return "", domain.NewRejected("upsert event", err)
	}

	_, err = g.pool.Exec(ctx, query,
		e.ID,
		e.SessionID,
		e.Timestamp,
		string(e.Kind),
		e.Weight,
		e.Volume,
		e.PresetID,
		e.Label,
		string(e.Source),
		fp,
	)
	if err != nil {
		return "", classify("upsert event", err)
	}
	return e.ID, nil
}

// UpsertPreset writes a preset.
func (g *Gateway) UpsertPreset(ctx context.Context, p domain.Preset) (string, error) {
	const query = `INSERT INTO presets (id, user_id, name, drink_type, size, weight, created_at, fingerprint)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            drink_type = excluded.drink_type,
            size = excluded.size,
            weight = excluded.weight,
            fingerprint = excluded.fingerprint,
            updated_at = now()
        WHERE presets.fingerprint IS DISTINCT FROM excluded.fingerprint`

	fp, err := domain.PresetEnvelope(p).Fingerprint()
	if err != nil {
		return "", domain.NewRejected("upsert preset", err)
	}

	_, err = g.pool.Exec(ctx, query, p.ID, p.UserID, p.Name, p.DrinkType, p.Size, p.Weight, p.CreatedAt, fp)
	if err != nil {
		return "", classify("upsert preset", err)
	}
	return p.ID, nil
}

// DeleteUser removes the user and, through cascades, everything they own.
// Deleting a user that does not exist succeeds.
func (g *Gateway) DeleteUser(ctx context.Context, userID string) error {
	if _, err := g.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return classify("delete user", err)
	}
	return nil
}

// classify maps a pgx error onto the sync error taxonomy. A server-side
// error about the statement rejects that record; anything else (dial
// failures, timeouts, lost connections) means the remote is unreachable.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			// connection_exception class
			return domain.NewUnreachable(op, err)
		case pgErr.Code == "57P01", pgErr.Code == "57P03":
			// admin_shutdown, cannot_connect_now
			return domain.NewUnreachable(op, err)
		default:
			return domain.NewRejected(op, fmt.Errorf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code))
		}
	}
	return domain.NewUnreachable(op, err)
}
