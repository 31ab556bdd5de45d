// Package remote defines the boundary to the remote store.
//
// Every Gateway call is an idempotent upsert (or delete) keyed by the local
// record id, so redelivery after a crash mid-sync is safe. Implementations
// report failures as domain errors: REMOTE_UNREACHABLE when the store could
// not be reached, REMOTE_REJECTED when it refused one record.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/pacer/internal/domain"
)

// Gateway performs the network calls of a sync pass.
// Conflicts resolve as last-write-wins: the latest upsert for an id replaces
// whatever the remote held.
type Gateway interface {
	UpsertUser(ctx context.Context, userID string) error
	UpsertSession(ctx context.Context, s domain.Session) (remoteID string, err error)
	UpsertEvent(ctx context.Context, e domain.Event) (remoteID string, err error)
	UpsertPreset(ctx context.Context, p domain.Preset) (remoteID string, err error)
	DeleteUser(ctx context.Context, userID string) error
}

// Push dispatches one envelope to the matching upsert.
func Push(ctx context.Context, gw Gateway, env domain.Envelope) (string, error) {
	switch env.Kind {
	case domain.KindSession:
		if env.Session == nil {
			return "", fmt.Errorf("push %s %s: empty envelope", env.Kind, env.ID)
		}
		return gw.UpsertSession(ctx, *env.Session)
	case domain.KindEvent:
		if env.Event == nil {
			return "", fmt.Errorf("push %s %s: empty envelope", env.Kind, env.ID)
		}
		return gw.UpsertEvent(ctx, *env.Event)
	case domain.KindPreset:
		if env.Preset == nil {
			return "", fmt.Errorf("push %s %s: empty envelope", env.Kind, env.ID)
		}
		return gw.UpsertPreset(ctx, *env.Preset)
	default:
		return "", fmt.Errorf("push: unknown record kind %q", env.Kind)
	}
}

// Disabled is a Gateway for running without a remote store.
// Every call fails as unreachable, so records stay dirty until a
// remote is configured.
type Disabled struct{}

var errDisabled = errors.New("no remote store configured")

func (Disabled) UpsertUser(context.Context, string) error {
	return domain.NewUnreachable("upsert user", errDisabled)
}

func (Disabled) UpsertSession(context.Context, domain.Session) (string, error) {
	return "", domain.NewUnreachable("upsert session", errDisabled)
}

func (Disabled) UpsertEvent(context.Context, domain.Event) (string, error) {
	return "", domain.NewUnreachable("upsert event", errDisabled)
}

func (Disabled) UpsertPreset(context.Context, domain.Preset) (string, error) {
	return "", domain.NewUnreachable("upsert preset", errDisabled)
}

func (Disabled) DeleteUser(context.Context, string) error {
	return domain.NewUnreachable("delete user", errDisabled)
}
