package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.String())
		})
	}
}

func TestRun_RecordsTrace(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: trace
description: start then log
flow:
  - invoke: start_session
  - advance: 5m
  - invoke: append_event
    args: { session_id: $session, kind: positive, weight: 2 }
assertions:
  - type: trace_contains
    command: append_event
    args: { session_id: $session, weight: 2 }
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.String())
	require.Len(t, result.Trace, 4)

	assert.Equal(t, EventInvocation, result.Trace[0].Type)
	assert.Equal(t, "start_session", result.Trace[0].Command)
	assert.Equal(t, int64(1), result.Trace[0].Seq)

	done := result.Trace[3]
	assert.Equal(t, EventCompletion, done.Type)
	assert.Equal(t, CaseOK, done.Case)
	assert.Equal(t, "id-0002", done.Result["event_id"])
	assert.Equal(t, 2.0, done.Result["running_balance"])
	assert.Equal(t, "id-0001", result.Trace[2].Args["session_id"], "references are expanded in the trace")
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
description: wrong expectations are reported
flow:
  - invoke: start_session
  - invoke: start_session
    expect: { case: ok }
  - invoke: current_state
    args: { session_id: $session }
    expect:
      case: ok
      result: { running_balance: 7 }
assertions:
  - type: sync_status
    expect: { status: idle }
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected case ok, got CONSTRAINT_VIOLATION")
	assert.Contains(t, result.Errors[1], `result field "running_balance" = 0, want 7`)
}

func TestRun_UnexpectedFailureWithoutExpect(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unexpected
description: a failing step with no expect clause fails the run
flow:
  - invoke: end_session
    args: { session_id: nope }
assertions:
  - type: trace_count
    command: end_session
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected failure")
	assert.Equal(t, "NOT_FOUND", result.Trace[1].Case)
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/offline_restore.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestResultString(t *testing.T) {
	r := NewResult()
	assert.Equal(t, "PASS", r.String())

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, "FAIL\n  boom", r.String())
}
