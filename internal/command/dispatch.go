package command

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/pacer/internal/core"
	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/syncer"
)

// Handler is the set of operations commands are dispatched onto.
// *core.Service implements it.
type Handler interface {
	StartSession(ctx context.Context) (domain.Session, error)
	EndSession(ctx context.Context, sessionID string) (domain.SessionSummary, error)
	AppendEvent(ctx context.Context, sessionID string, in core.NewEvent) (core.Outcome, error)
	AppendPreset(ctx context.Context, sessionID, presetID string, source domain.Source) (core.Outcome, error)
	DeleteEvent(ctx context.Context, eventID string) (core.Outcome, error)
	ReplaceEvent(ctx context.Context, eventID string, payload domain.Payload) (core.Outcome, error)
	CurrentState(ctx context.Context, sessionID string) (domain.DerivedState, error)
	SyncStatus() syncer.Snapshot
	TriggerSync(ctx context.Context) (syncer.Report, error)
}

var _ Handler = (*core.Service)(nil)

// Result is the typed reply to a command. Exactly one payload field is set.
type Result struct {
	Type    Type                   `json:"type"`
	Session *domain.Session        `json:"session,omitempty"`
	Summary *domain.SessionSummary `json:"summary,omitempty"`
	Outcome *core.Outcome          `json:"outcome,omitempty"`
	State   *domain.DerivedState   `json:"state,omitempty"`
	Status  *syncer.Snapshot       `json:"status,omitempty"`
	Report  *syncer.Report         `json:"report,omitempty"`
}

// Dispatch runs cmd against h.
func Dispatch(ctx context.Context, h Handler, cmd Command) (Result, error) {
	res := Result{Type: cmd.Type()}

	switch c := cmd.(type) {
	case StartSession:
		sess, err := h.StartSession(ctx)
		if err != nil {
			return res, err
		}
		res.Session = &sess

	case EndSession:
		summary, err := h.EndSession(ctx, c.SessionID)
		if err != nil {
			return res, err
		}
		res.Summary = &summary

	case AppendEvent:
		var at time.Time
		if c.At != nil {
			at = *c.At
		}
		out, err := h.AppendEvent(ctx, c.SessionID, core.NewEvent{
			Kind:   c.Kind,
			Weight: c.Weight,
			Volume: c.Volume,
			Label:  c.Label,
			Source: c.Source,
			At:     at,
		})
		if err != nil {
			return res, err
		}
		res.Outcome = &out

	case AppendPreset:
		out, err := h.AppendPreset(ctx, c.SessionID, c.PresetID, c.Source)
		if err != nil {
			return res, err
		}
		res.Outcome = &out

	case DeleteEvent:
		out, err := h.DeleteEvent(ctx, c.EventID)
		if err != nil {
			return res, err
		}
		res.Outcome = &out

	case ReplaceEvent:
		out, err := h.ReplaceEvent(ctx, c.EventID, c.Payload)
		if err != nil {
			return res, err
		}
		res.Outcome = &out

	case CurrentState:
		st, err := h.CurrentState(ctx, c.SessionID)
		if err != nil {
			return res, err
		}
		res.State = &st

	case SyncStatus:
		snap := h.SyncStatus()
		res.Status = &snap

	case TriggerSync:
		report, err := h.TriggerSync(ctx)
		if err != nil {
			return res, err
		}
		res.Report = &report

	default:
		return res, fmt.Errorf("dispatch: unhandled command %T", cmd)
	}
	return res, nil
}
