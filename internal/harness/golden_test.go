package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_BreakReminders(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/break_reminders.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.String())
}

func TestMarshalTrace_Canonical(t *testing.T) {
	r := NewResult()
	r.AddInvocationTrace("current_state", map[string]any{"session_id": "s-1"})
	r.AddCompletionTrace(CaseOK, map[string]any{"running_balance": 1.5, "is_warning": false})
	r.Signals = []string{"warning"}

	data, err := MarshalTrace("tiny", r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"tiny","signals":["warning"],"trace":[`+
			`{"args":{"session_id":"s-1"},"command":"current_state","seq":1,"type":"invocation"},`+
			`{"case":"ok","result":{"is_warning":false,"running_balance":1.5},"seq":2,"type":"completion"}]}`,
		string(data))
}
