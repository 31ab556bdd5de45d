package core

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/reminder"
	"github.com/roach88/pacer/internal/state"
)

// NewEvent describes an event to append. Nil Weight and Volume take the
// defaults: 1.0 for a positive weight and the user's default volume for a
// negative event.
type NewEvent struct {
	Kind   domain.EventKind
	Weight *float64
	Volume *float64
	Label  string
	Source domain.Source

	// At is the event time. Zero means now.
	At time.Time
}

// Outcome is the result of a mutation: the affected record and the state
// of its session after the change.
type Outcome struct {
	EventID   string              `json:"event_id,omitempty"`
	SessionID string              `json:"session_id"`
	State     domain.DerivedState `json:"state"`
	Signals   []reminder.Signal   `json:"signals,omitempty"`
}

// AppendEvent logs an event into a session.
func (s *Service) AppendEvent(ctx context.Context, sessionID string, in NewEvent) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.settings(ctx)
	if err != nil {
		return Outcome{}, err
	}

	payload := domain.Payload{Kind: in.Kind, Label: in.Label}
	switch in.Kind {
	case domain.EventPositive:
		payload.Weight = domain.DefaultWeight
		if in.Weight != nil {
			payload.Weight = *in.Weight
		}
	case domain.EventNegative:
		payload.Volume = settings.DefaultNegativeVolume
		if in.Volume != nil {
			payload.Volume = *in.Volume
		}
	}
	return s.append(ctx, sessionID, payload, in.Source, in.At, settings)
}

// AppendPreset logs a positive event expanded from a saved preset. The
// preset's fields are copied into the event.
func (s *Service) AppendPreset(ctx context.Context, sessionID, presetID string, source domain.Source) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	preset, err := s.store.GetPreset(ctx, presetID)
	if err != nil {
		return Outcome{}, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return s.append(ctx, sessionID, preset.Payload(), source, time.Time{}, settings)
}

func (s *Service) append(ctx context.Context, sessionID string, payload domain.Payload, source domain.Source, at time.Time, settings domain.UserSettings) (Outcome, error) {
	if err := payload.Validate(); err != nil {
		return Outcome{}, err
	}
	if at.IsZero() {
		at = s.clock.Now()
	}

	ev := domain.Event{
		ID:        s.ids.Generate(),
		SessionID: sessionID,
		Timestamp: at,
		Payload:   payload,
		Source:    source,
	}
	if _, err := s.store.AppendEvent(ctx, ev); err != nil {
		return Outcome{}, err
	}

	out, err := s.refresh(ctx, sessionID, settings)
	if err != nil {
		return Outcome{}, err
	}
	out.EventID = ev.ID

	s.logger.Debug("event appended",
		"event_id", ev.ID,
		"session_id", sessionID,
		"kind", string(payload.Kind),
		"running_balance", out.State.RunningBalance,
	)
	s.syncer.NotifyDirty()
	return out, nil
}

// DeleteEvent removes an event and recomputes its session.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.settings(ctx)
	if err != nil {
		return Outcome{}, err
	}
	ev, err := s.store.DeleteEvent(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.refresh(ctx, ev.SessionID, settings)
	if err != nil {
		return Outcome{}, err
	}
	out.EventID = eventID

	s.logger.Debug("event deleted", "event_id", eventID, "session_id", ev.SessionID)
	s.syncer.NotifyDirty()
	return out, nil
}

// ReplaceEvent swaps an event's payload. Its id and timestamp are kept.
func (s *Service) ReplaceEvent(ctx context.Context, eventID string, payload domain.Payload) (Outcome, error) {
	if err := payload.Validate(); err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.settings(ctx)
	if err != nil {
		return Outcome{}, err
	}
	ev, err := s.store.ReplaceEvent(ctx, eventID, payload)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.refresh(ctx, ev.SessionID, settings)
	if err != nil {
		return Outcome{}, err
	}
	out.EventID = eventID

	s.logger.Debug("event replaced", "event_id", eventID, "session_id", ev.SessionID, "kind", string(payload.Kind))
	s.syncer.NotifyDirty()
	return out, nil
}

// refresh recomputes a session after one of its events changed. An active
// session is run through the reminder policy; an ended one has its cached
// summary rewritten. Must be called with s.mu held.
func (s *Service) refresh(ctx context.Context, sessionID string, settings domain.UserSettings) (Outcome, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	events, err := s.store.EventsFor(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	st := state.Compute(events, settings.WarningThreshold)
	out := Outcome{SessionID: sessionID, State: st}

	if sess.Active {
		out.Signals = s.policy.Evaluate(sessionID, st, settings.DueEveryN)
		s.notify(ctx, sessionID, st, out.Signals)
		return out, nil
	}

	if sess.EndedAt == nil {
		return Outcome{}, domain.NewStorageError("refresh session",
			fmt.Errorf("session %s is inactive without an end time", sessionID))
	}
	summary := state.Summarize(events, sess.StartedAt, sess.EndedAt, *sess.EndedAt, settings)
	if err := s.store.UpdateSummary(ctx, sessionID, summary); err != nil {
		return Outcome{}, err
	}
	return out, nil
}
