package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// EventKind distinguishes the two kinds of logged facts.
type EventKind string

const (
	// EventPositive adds its weight to the running balance.
	EventPositive EventKind = "positive"
	// EventNegative subtracts one unit and resets the since-last-negative counter.
	EventNegative EventKind = "negative"
)

// Validate reports whether k is a known event kind.
func (k EventKind) Validate() error {
	switch k {
	case EventPositive, EventNegative:
		return nil
	default:
		return NewInvalidInput("event kind", fmt.Sprintf("unknown event kind %q", k))
	}
}

// Source records which surface produced an event. Informational only.
type Source string

const (
	SourcePhone    Source = "phone"
	SourceWatch    Source = "watch"
	SourceWidget   Source = "widget"
	SourceActivity Source = "live_activity"
)

// DefaultWeight is the weight of a positive event created without one.
const DefaultWeight = 1.0

// Session is one bounded logging period.
type Session struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Active    bool            `json:"active"`
	Summary   *SessionSummary `json:"summary,omitempty"`
	Dirty     bool            `json:"dirty"`
	Revision  int64           `json:"revision"`
}

// Payload is the kind-specific, replaceable part of an event.
type Payload struct {
	Kind EventKind `json:"kind"`

	// Weight applies to positive events. Zero is a valid weight.
	Weight float64 `json:"weight"`

	// Volume applies to negative events and is cosmetic.
	Volume float64 `json:"volume"`

	// PresetID references the preset the event was created from, if any.
	// The payload is denormalised so deleting the preset never changes it.
	PresetID string `json:"preset_id,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Validate checks kind-specific constraints.
func (p Payload) Validate() error {
	if err := p.Kind.Validate(); err != nil {
		return err
	}
	if !nonNegative(p.Weight) {
		return NewInvalidInput("weight", "weight must be a non-negative number")
	}
	if !nonNegative(p.Volume) {
		return NewInvalidInput("volume", "volume must be a non-negative number")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}

// Event is an immutable timestamped fact in a session's log.
// Replacing an event swaps its Payload but keeps ID and Timestamp.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload
	Source   Source `json:"source"`
	Dirty    bool   `json:"dirty"`
	Revision int64  `json:"revision"`
}

// Preset is a named shortcut that expands into an event payload.
type Preset struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	DrinkType string    `json:"drink_type"`
	Size      float64   `json:"size"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	Dirty     bool      `json:"dirty"`
	Revision  int64     `json:"revision"`
}

// Validate checks preset fields before storage.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewInvalidInput("preset name", "preset name is required")
	}
	if !nonNegative(p.Weight) {
		return NewInvalidInput("preset weight", "weight must be non-negative")
	}
	if !nonNegative(p.Size) {
		return NewInvalidInput("preset size", "size must be non-negative")
	}
	return nil
}

// Payload expands the preset into a positive event payload.
func (p Preset) Payload() Payload {
	return Payload{
		Kind:     EventPositive,
		Weight:   p.Weight,
		PresetID: p.ID,
		Label:    p.Name,
	}
}

// Units selects how volumes are displayed. It never affects arithmetic.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// UserSettings is read by the state engine and reminder policy, never written by them.
type UserSettings struct {
	UserID                string        `json:"user_id"`
	DueEveryN             int           `json:"due_every_n"`
	ReminderInterval      time.Duration `json:"reminder_interval"`
	WarningThreshold      float64       `json:"warning_threshold"`
	DefaultNegativeVolume float64       `json:"default_negative_volume"`
	Units                 Units         `json:"units"`
}

// DefaultSettings returns the settings used before a user saves their own.
func DefaultSettings(userID string) UserSettings {
	return UserSettings{
		UserID:                userID,
		DueEveryN:             2,
		ReminderInterval:      20 * time.Minute,
		WarningThreshold:      4,
		DefaultNegativeVolume: 250,
		Units:                 UnitsMetric,
	}
}

// Validate enforces the settings constraints.
func (s UserSettings) Validate() error {
	if s.DueEveryN < 1 {
		return NewInvalidInput("due_every_n", "due_every_n must be at least 1")
	}
	if !finite(s.WarningThreshold) || s.WarningThreshold < 1 {
		return NewInvalidInput("warning_threshold", "warning_threshold must be at least 1")
	}
	if s.ReminderInterval < 0 {
		return NewInvalidInput("reminder_interval", "reminder_interval must not be negative")
	}
	if !nonNegative(s.DefaultNegativeVolume) {
		return NewInvalidInput("default_negative_volume", "default_negative_volume must not be negative")
	}
	switch s.Units {
	case UnitsMetric, UnitsImperial:
	default:
		return NewInvalidInput("units", fmt.Sprintf("unknown units %q", s.Units))
	}
	return nil
}

// DerivedState is the result of replaying a session's events.
type DerivedState struct {
	RunningBalance      float64 `json:"running_balance"`
	SinceLastNegative   int     `json:"since_last_negative"`
	TotalPositive       int     `json:"total_positive"`
	TotalNegative       int     `json:"total_negative"`
	TotalPositiveWeight float64 `json:"total_positive_weight"`
	TotalNegativeVolume float64 `json:"total_negative_volume"`
	IsWarning           bool    `json:"is_warning"`
}

// SessionSummary is the cached outcome of a session.
type SessionSummary struct {
	State     DerivedState  `json:"state"`
	Adherence float64       `json:"adherence"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}
