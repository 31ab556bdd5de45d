package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"positive default", Payload{Kind: EventPositive, Weight: DefaultWeight}, false},
		{"zero weight", Payload{Kind: EventPositive}, false},
		{"negative with volume", Payload{Kind: EventNegative, Volume: 250}, false},
		{"unknown kind", Payload{Kind: "sideways"}, true},
		{"negative weight", Payload{Kind: EventPositive, Weight: -1}, true},
		{"nan weight", Payload{Kind: EventPositive, Weight: math.NaN()}, true},
		{"inf volume", Payload{Kind: EventNegative, Volume: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidInput(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPresetPayload(t *testing.T) {
	p := Preset{ID: "p-1", Name: "Pint", DrinkType: "beer", Size: 568, Weight: 2}
	require.NoError(t, p.Validate())

	payload := p.Payload()
	assert.Equal(t, EventPositive, payload.Kind)
	assert.Equal(t, 2.0, payload.Weight)
	assert.Equal(t, "p-1", payload.PresetID)
	assert.Equal(t, "Pint", payload.Label)

	assert.Error(t, Preset{Name: "  "}.Validate())
}

func TestPresetValidate_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name   string
		preset Preset
	}{
		{"inf weight", Preset{Name: "Pint", Weight: math.Inf(1)}},
		{"negative inf weight", Preset{Name: "Pint", Weight: math.Inf(-1)}},
		{"nan weight", Preset{Name: "Pint", Weight: math.NaN()}},
		{"inf size", Preset{Name: "Pint", Weight: 1, Size: math.Inf(1)}},
		{"nan size", Preset{Name: "Pint", Weight: 1, Size: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.preset.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err))
		})
	}
}

func TestUserSettingsValidate(t *testing.T) {
	s := DefaultSettings("u-1")
	require.NoError(t, s.Validate())

	bad := s
	bad.DueEveryN = 0
	assert.True(t, IsInvalidInput(bad.Validate()))

	bad = s
	bad.WarningThreshold = 0.5
	assert.True(t, IsInvalidInput(bad.Validate()))

	bad = s
	bad.ReminderInterval = -time.Second
	assert.Error(t, bad.Validate())

	bad = s
	bad.WarningThreshold = math.NaN()
	assert.True(t, IsInvalidInput(bad.Validate()))

	bad = s
	bad.WarningThreshold = math.Inf(1)
	assert.True(t, IsInvalidInput(bad.Validate()))

	bad = s
	bad.DefaultNegativeVolume = math.NaN()
	assert.True(t, IsInvalidInput(bad.Validate()))

	bad = s
	bad.Units = "cubits"
	assert.Error(t, bad.Validate())
}

func TestSortEventsByTimestampThenID(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	events := []Event{
		{ID: "c", Timestamp: t2},
		{ID: "b", Timestamp: t1},
		{ID: "a", Timestamp: t2},
	}

	sorted := SortEvents(events)
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
	assert.Equal(t, "c", events[0].ID, "input must not be reordered")
}

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("start session: %w", ErrActiveSessionExists)
	assert.True(t, errors.Is(wrapped, ErrActiveSessionExists))
	assert.True(t, errors.Is(wrapped, &Error{Code: CodeConstraint}))
	assert.False(t, errors.Is(wrapped, ErrSessionEnded))
	assert.True(t, IsConstraint(wrapped))

	storage := NewStorageError("append event", errors.New("disk full"))
	assert.Equal(t, CodeLocalStorage, CodeOf(storage))
	assert.Equal(t, "LOCAL_STORAGE_FAILURE: append event: disk full", storage.Error())

	nf := NewNotFound(KindEvent, "ev-9")
	assert.True(t, IsNotFound(nf))
	assert.Contains(t, nf.Error(), `event "ev-9" not found`)

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
