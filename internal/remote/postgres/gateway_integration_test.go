//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roach88/pacer/internal/domain"
)

func startGateway(t *testing.T) (*Gateway, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("pacer"),
		postgrescontainer.WithUsername("pacer"),
		postgrescontainer.WithPassword("pacer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	gw := NewGateway(pool)
	require.NoError(t, gw.Migrate(ctx))
	require.NoError(t, gw.Migrate(ctx), "migrate is idempotent")
	return gw, pool
}

func TestGatewayUpsertsAreIdempotent(t *testing.T) {
	gw, pool := startGateway(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, gw.UpsertUser(ctx, "u-1"))
	require.NoError(t, gw.UpsertUser(ctx, "u-1"))

	sess := domain.Session{ID: "s-1", UserID: "u-1", StartedAt: now, Active: true}
	id, err := gw.UpsertSession(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, "s-1", id)

	ev := domain.Event{
		ID:        "e-1",
		SessionID: "s-1",
		Timestamp: now,
		Payload:   domain.Payload{Kind: domain.EventPositive, Weight: 1},
		Source:    domain.SourceWatch,
	}
	for i := 0; i < 2; i++ {
		_, err = gw.UpsertEvent(ctx, ev)
		require.NoError(t, err)
	}

	// Last write wins.
	ev.Weight = 2.5
	_, err = gw.UpsertEvent(ctx, ev)
	require.NoError(t, err)

	var weight float64
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT weight FROM events WHERE id = 'e-1'`).Scan(&weight))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&count))
	require.Equal(t, 2.5, weight)
	require.Equal(t, 1, count)

	_, err = gw.UpsertPreset(ctx, domain.Preset{ID: "p-1", UserID: "u-1", Name: "Pint", Weight: 2, CreatedAt: now})
	require.NoError(t, err)

	ended := now.Add(time.Hour)
	sess.Active = false
	sess.EndedAt = &ended
	sess.Summary = &domain.SessionSummary{Adherence: 1, StartedAt: now, EndedAt: &ended}
	_, err = gw.UpsertSession(ctx, sess)
	require.NoError(t, err)

	require.NoError(t, gw.DeleteUser(ctx, "u-1"))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&count))
	require.Equal(t, 0, count, "delete cascades")
	require.NoError(t, gw.DeleteUser(ctx, "u-1"))
}

func TestGatewayRejectsOrphanEvent(t *testing.T) {
	gw, _ := startGateway(t)
	ctx := context.Background()

	_, err := gw.UpsertEvent(ctx, domain.Event{
		ID:        "e-orphan",
		SessionID: "missing",
		Timestamp: time.Now().UTC(),
		Payload:   domain.Payload{Kind: domain.EventNegative},
	})
	require.True(t, domain.IsRejected(err), "got %v", err)
}
