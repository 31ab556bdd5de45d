package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() Event {
	return Event{
		ID:        "ev-1",
		SessionID: "s-1",
		Timestamp: time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC),
		Payload:   Payload{Kind: EventPositive, Weight: 1},
		Source:    SourcePhone,
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	ev := testEvent()

	fp1, err := EventEnvelope(ev).Fingerprint()
	require.NoError(t, err)
	fp2, err := EventEnvelope(ev).Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintIgnoresBookkeeping(t *testing.T) {
	ev := testEvent()
	fp1, err := EventEnvelope(ev).Fingerprint()
	require.NoError(t, err)

	ev.Dirty = true
	ev.Revision = 9
	fp2, err := EventEnvelope(ev).Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "dirty and revision are local bookkeeping")
}

func TestFingerprintChangesWithPayload(t *testing.T) {
	ev := testEvent()
	fp1, err := EventEnvelope(ev).Fingerprint()
	require.NoError(t, err)

	ev.Weight = 2
	fp2, err := EventEnvelope(ev).Fingerprint()
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprintDomainSeparation(t *testing.T) {
	data := []byte(`{"id":"x"}`)
	assert.NotEqual(t, hashWithDomain(DomainSession, data), hashWithDomain(DomainPreset, data))
}

func TestFingerprintEmptyEnvelope(t *testing.T) {
	_, err := Envelope{Kind: KindSession, ID: "s-1"}.Fingerprint()
	assert.Error(t, err)
}

func TestEnvelopeCanonicalObject(t *testing.T) {
	ended := time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)
	s := Session{
		ID:        "s-1",
		UserID:    "u-1",
		StartedAt: time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC),
		EndedAt:   &ended,
		Summary: &SessionSummary{
			State:     DerivedState{RunningBalance: 1, TotalPositive: 2, TotalNegative: 1, TotalPositiveWeight: 2},
			Adherence: 0.5,
			Duration:  3 * time.Hour,
			StartedAt: time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC),
			EndedAt:   &ended,
		},
		Dirty: true,
	}

	data, err := MarshalCanonical(SessionEnvelope(s).CanonicalObject())
	require.NoError(t, err)
	assert.Equal(t,
		`{"active":false,"ended_at":"2026-01-02T23:00:00Z","id":"s-1","started_at":"2026-01-02T20:00:00Z",`+
			`"summary":{"adherence":0.5,"duration_ms":10800000,"ended_at":"2026-01-02T23:00:00Z","started_at":"2026-01-02T20:00:00Z",`+
			`"state":{"is_warning":false,"running_balance":1,"since_last_negative":0,"total_negative":1,"total_negative_volume":0,`+
			`"total_positive":2,"total_positive_weight":2}},"user_id":"u-1"}`,
		string(data))
}

func TestEnvelopeParentID(t *testing.T) {
	assert.Equal(t, "s-1", EventEnvelope(testEvent()).ParentID())
	assert.Empty(t, SessionEnvelope(Session{ID: "s-1"}).ParentID())
}
