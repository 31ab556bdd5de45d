// Package command defines the typed messages that cross the process
// boundary: companion devices, widgets and `pacer apply` all speak it.
//
// Command is a sealed interface. A message is decoded exactly once, at the
// transport edge, into one of the concrete types below; Dispatch then
// switches over every variant. Untyped maps never reach the core.
//
// Wire form is a JSON object with a "type" discriminator:
//
//	{"type":"append_event","session_id":"...","kind":"positive","weight":1.5}
package command

import (
	"time"

	"github.com/roach88/pacer/internal/domain"
)

// Type is the wire discriminator of a command.
type Type string

const (
	TypeStartSession Type = "start_session"
	TypeEndSession   Type = "end_session"
	TypeAppendEvent  Type = "append_event"
	TypeAppendPreset Type = "append_preset"
	TypeDeleteEvent  Type = "delete_event"
	TypeReplaceEvent Type = "replace_event"
	TypeCurrentState Type = "current_state"
	TypeSyncStatus   Type = "sync_status"
	TypeTriggerSync  Type = "trigger_sync"
)

// Types lists every command type in a stable order.
var Types = []Type{
	TypeStartSession,
	TypeEndSession,
	TypeAppendEvent,
	TypeAppendPreset,
	TypeDeleteEvent,
	TypeReplaceEvent,
	TypeCurrentState,
	TypeSyncStatus,
	TypeTriggerSync,
}

// Command is implemented only by the types in this package.
type Command interface {
	Type() Type
	Validate() error
	command()
}

// StartSession opens a new session.
type StartSession struct{}

// EndSession closes a session.
type EndSession struct {
	SessionID string `json:"session_id"`
}

// AppendEvent logs an event. Nil Weight and Volume take the defaults.
type AppendEvent struct {
	SessionID string           `json:"session_id"`
	Kind      domain.EventKind `json:"kind"`
	Weight    *float64         `json:"weight,omitempty"`
	Volume    *float64         `json:"volume,omitempty"`
	Label     string           `json:"label,omitempty"`
	Source    domain.Source    `json:"source,omitempty"`
	At        *time.Time       `json:"at,omitempty"`
}

// AppendPreset logs an event expanded from a preset.
type AppendPreset struct {
	SessionID string        `json:"session_id"`
	PresetID  string        `json:"preset_id"`
	Source    domain.Source `json:"source,omitempty"`
}

// DeleteEvent removes an event.
type DeleteEvent struct {
	EventID string `json:"event_id"`
}

// ReplaceEvent swaps an event's payload.
type ReplaceEvent struct {
	EventID string         `json:"event_id"`
	Payload domain.Payload `json:"payload"`
}

// CurrentState asks for a session's derived state.
type CurrentState struct {
	SessionID string `json:"session_id"`
}

// SyncStatus asks for the sync indicator values.
type SyncStatus struct{}

// TriggerSync runs a sync pass.
type TriggerSync struct{}

func (StartSession) Type() Type { return TypeStartSession }
func (EndSession) Type() Type   { return TypeEndSession }
func (AppendEvent) Type() Type  { return TypeAppendEvent }
func (AppendPreset) Type() Type { return TypeAppendPreset }
func (DeleteEvent) Type() Type  { return TypeDeleteEvent }
func (ReplaceEvent) Type() Type { return TypeReplaceEvent }
func (CurrentState) Type() Type { return TypeCurrentState }
func (SyncStatus) Type() Type   { return TypeSyncStatus }
func (TriggerSync) Type() Type  { return TypeTriggerSync }

func (StartSession) command() {}
func (EndSession) command()   {}
func (AppendEvent) command()  {}
func (AppendPreset) command() {}
func (DeleteEvent) command()  {}
func (ReplaceEvent) command() {}
func (CurrentState) command() {}
func (SyncStatus) command()   {}
func (TriggerSync) command()  {}

func (StartSession) Validate() error { return nil }
func (SyncStatus) Validate() error   { return nil }
func (TriggerSync) Validate() error  { return nil }

func (c EndSession) Validate() error {
	return required("session_id", c.SessionID)
}

func (c AppendEvent) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	if err := c.Kind.Validate(); err != nil {
		return err
	}
	if c.Kind == domain.EventNegative && c.Weight != nil {
		return domain.NewInvalidInput("weight", "negative events carry no weight")
	}
	if c.Kind == domain.EventPositive && c.Volume != nil {
		return domain.NewInvalidInput("volume", "positive events carry no volume")
	}
	return nil
}

func (c AppendPreset) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	return required("preset_id", c.PresetID)
}

func (c DeleteEvent) Validate() error {
	return required("event_id", c.EventID)
}

func (c ReplaceEvent) Validate() error {
	if err := required("event_id", c.EventID); err != nil {
		return err
	}
	return c.Payload.Validate()
}

func (c CurrentState) Validate() error {
	return required("session_id", c.SessionID)
}

func required(field, value string) error {
	if value == "" {
		return domain.NewInvalidInput(field, field+" is required")
	}
	return nil
}
