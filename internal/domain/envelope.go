package domain

import "time"

// RecordKind names the synchronizable record types.
type RecordKind string

const (
	KindSession RecordKind = "session"
	KindEvent   RecordKind = "event"
	KindPreset  RecordKind = "preset"
)

// SyncOrder is the order kinds are pushed in one pass: parents before children.
var SyncOrder = []RecordKind{KindSession, KindEvent, KindPreset}

// Envelope is one dirty record as captured by a pending snapshot.
// Exactly one of Session, Event, Preset is set, matching Kind.
type Envelope struct {
	Kind     RecordKind
	ID       string
	Revision int64
	Session  *Session
	Event    *Event
	Preset   *Preset
}

// SessionEnvelope wraps a session.
func SessionEnvelope(s Session) Envelope {
	return Envelope{Kind: KindSession, ID: s.ID, Revision: s.Revision, Session: &s}
}

// EventEnvelope wraps an event.
func EventEnvelope(e Event) Envelope {
	return Envelope{Kind: KindEvent, ID: e.ID, Revision: e.Revision, Event: &e}
}

// PresetEnvelope wraps a preset.
func PresetEnvelope(p Preset) Envelope {
	return Envelope{Kind: KindPreset, ID: p.ID, Revision: p.Revision, Preset: &p}
}

// ParentID returns the session id an event envelope depends on.
func (e Envelope) ParentID() string {
	if e.Kind == KindEvent && e.Event != nil {
		return e.Event.SessionID
	}
	return ""
}

// CanonicalObject returns the record as a map suitable for MarshalCanonical.
// Dirty and Revision are local bookkeeping and are left out.
func (e Envelope) CanonicalObject() map[string]any {
	switch e.Kind {
	case KindSession:
		if e.Session == nil {
			return nil
		}
		s := e.Session
		obj := map[string]any{
			"id":         s.ID,
			"user_id":    s.UserID,
			"started_at": formatTime(s.StartedAt),
			"active":     s.Active,
		}
		if s.EndedAt != nil {
			obj["ended_at"] = formatTime(*s.EndedAt)
		}
		if s.Summary != nil {
			obj["summary"] = summaryObject(*s.Summary)
		}
		return obj
	case KindEvent:
		if e.Event == nil {
			return nil
		}
		ev := e.Event
		obj := map[string]any{
			"id":         ev.ID,
			"session_id": ev.SessionID,
			"timestamp":  formatTime(ev.Timestamp),
			"kind":       string(ev.Kind),
			"weight":     ev.Weight,
			"volume":     ev.Volume,
			"source":     string(ev.Source),
		}
		if ev.PresetID != "" {
			obj["preset_id"] = ev.PresetID
		}
		if ev.Label != "" {
			obj["label"] = ev.Label
		}
		return obj
	case KindPreset:
		if e.Preset == nil {
			return nil
		}
		p := e.Preset
		return map[string]any{
			"id":         p.ID,
			"user_id":    p.UserID,
			"name":       p.Name,
			"drink_type": p.DrinkType,
			"size":       p.Size,
			"weight":     p.Weight,
			"created_at": formatTime(p.CreatedAt),
		}
	default:
		return nil
	}
}

// StateObject renders a derived state as a canonical map.
func StateObject(s DerivedState) map[string]any {
	return map[string]any{
		"running_balance":       s.RunningBalance,
		"since_last_negative":   s.SinceLastNegative,
		"total_positive":        s.TotalPositive,
		"total_negative":        s.TotalNegative,
		"total_positive_weight": s.TotalPositiveWeight,
		"total_negative_volume": s.TotalNegativeVolume,
		"is_warning":            s.IsWarning,
	}
}

func summaryObject(s SessionSummary) map[string]any {
	obj := map[string]any{
		"state":       StateObject(s.State),
		"adherence":   s.Adherence,
		"duration_ms": s.Duration.Milliseconds(),
		"started_at":  formatTime(s.StartedAt),
	}
	if s.EndedAt != nil {
		obj["ended_at"] = formatTime(*s.EndedAt)
	}
	return obj
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
