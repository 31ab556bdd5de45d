package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pacer/internal/core"
	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/store"
	"github.com/roach88/pacer/internal/syncer"
	"github.com/roach88/pacer/internal/testutil"
)

func TestDecode(t *testing.T) {
	at := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	weight := 1.5

	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{"start", `{"type":"start_session"}`, StartSession{}},
		{"end", `{"type":"end_session","session_id":"s-1"}`, EndSession{SessionID: "s-1"}},
		{
			"append with weight and time",
			`{"type":"append_event","session_id":"s-1","kind":"positive","weight":1.5,"source":"watch","at":"2026-03-14T20:00:00Z"}`,
			AppendEvent{SessionID: "s-1", Kind: domain.EventPositive, Weight: &weight, Source: domain.SourceWatch, At: &at},
		},
		{
			"append negative",
			`{"type":"append_event","session_id":"s-1","kind":"negative"}`,
			AppendEvent{SessionID: "s-1", Kind: domain.EventNegative},
		},
		{"preset", `{"type":"append_preset","session_id":"s-1","preset_id":"p-1"}`, AppendPreset{SessionID: "s-1", PresetID: "p-1"}},
		{"delete", `{"type":"delete_event","event_id":"e-1"}`, DeleteEvent{EventID: "e-1"}},
		{
			"replace",
			`{"type":"replace_event","event_id":"e-1","payload":{"kind":"negative","volume":330}}`,
			ReplaceEvent{EventID: "e-1", Payload: domain.Payload{Kind: domain.EventNegative, Volume: 330}},
		},
		{"state", `{"type":"current_state","session_id":"s-1"}`, CurrentState{SessionID: "s-1"}},
		{"status", `{"type":"sync_status"}`, SyncStatus{}},
		{"sync", `{"type":"trigger_sync"}`, TriggerSync{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `start_session`},
		{"missing type", `{"session_id":"s-1"}`},
		{"unknown type", `{"type":"launch_rocket"}`},
		{"unknown field", `{"type":"end_session","session_id":"s-1","force":true}`},
		{"missing session", `{"type":"end_session"}`},
		{"bad kind", `{"type":"append_event","session_id":"s-1","kind":"maybe"}`},
		{"weight on negative", `{"type":"append_event","session_id":"s-1","kind":"negative","weight":2}`},
		{"volume on positive", `{"type":"append_event","session_id":"s-1","kind":"positive","volume":2}`},
		{"negative replace weight", `{"type":"replace_event","event_id":"e-1","payload":{"kind":"positive","weight":-1}}`},
		{"wrong field type", `{"type":"delete_event","event_id":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, domain.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	weight := 0.5
	for _, cmd := range []Command{
		StartSession{},
		AppendEvent{SessionID: "s-1", Kind: domain.EventPositive, Weight: &weight, Label: "half"},
		ReplaceEvent{EventID: "e-1", Payload: domain.Payload{Kind: domain.EventPositive, Weight: 2}},
	} {
		data, err := Encode(cmd)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, cmd, got)
	}

	data, err := Encode(SyncStatus{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"sync_status"}`, string(data))
}

func TestTypes_AllDecodable(t *testing.T) {
	seen := make(map[Type]bool)
	for _, typ := range Types {
		assert.False(t, seen[typ], "duplicate %s", typ)
		seen[typ] = true

		cmd, err := newCommand(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, deref(cmd).Type())
	}
}

// recorder is a Handler that records calls and returns canned values.
type recorder struct {
	calls []string
	err   error
}

func (r *recorder) record(call string) error {
	r.calls = append(r.calls, call)
	return r.err
}

func (r *recorder) StartSession(context.Context) (domain.Session, error) {
	return domain.Session{ID: "s-1", Active: true}, r.record("start")
}

func (r *recorder) EndSession(_ context.Context, id string) (domain.SessionSummary, error) {
	return domain.SessionSummary{Adherence: 1}, r.record("end:" + id)
}

func (r *recorder) AppendEvent(_ context.Context, id string, in core.NewEvent) (core.Outcome, error) {
	return core.Outcome{EventID: "e-1", SessionID: id}, r.record("append:" + id + ":" + string(in.Kind))
}

func (r *recorder) AppendPreset(_ context.Context, id, preset string, _ domain.Source) (core.Outcome, error) {
	return core.Outcome{SessionID: id}, r.record("preset:" + id + ":" + preset)
}

func (r *recorder) DeleteEvent(_ context.Context, id string) (core.Outcome, error) {
	return core.Outcome{EventID: id}, r.record("delete:" + id)
}

func (r *recorder) ReplaceEvent(_ context.Context, id string, p domain.Payload) (core.Outcome, error) {
	return core.Outcome{EventID: id}, r.record("replace:" + id + ":" + string(p.Kind))
}

func (r *recorder) CurrentState(_ context.Context, id string) (domain.DerivedState, error) {
	return domain.DerivedState{RunningBalance: 2}, r.record("state:" + id)
}

func (r *recorder) SyncStatus() syncer.Snapshot {
	r.calls = append(r.calls, "status")
	return syncer.Snapshot{Status: syncer.StatusIdle}
}

func (r *recorder) TriggerSync(context.Context) (syncer.Report, error) {
	return syncer.Report{Passes: 1}, r.record("sync")
}

func TestDispatch_EveryVariant(t *testing.T) {
	h := &recorder{}
	ctx := context.Background()

	cmds := []Command{
		StartSession{},
		EndSession{SessionID: "s-1"},
		AppendEvent{SessionID: "s-1", Kind: domain.EventNegative},
		AppendPreset{SessionID: "s-1", PresetID: "p-1"},
		DeleteEvent{EventID: "e-1"},
		ReplaceEvent{EventID: "e-2", Payload: domain.Payload{Kind: domain.EventPositive}},
		CurrentState{SessionID: "s-1"},
		SyncStatus{},
		TriggerSync{},
	}
	require.Len(t, cmds, len(Types))

	for _, cmd := range cmds {
		res, err := Dispatch(ctx, h, cmd)
		require.NoError(t, err)
		assert.Equal(t, cmd.Type(), res.Type)
	}

	assert.Equal(t, []string{
		"start",
		"end:s-1",
		"append:s-1:negative",
		"preset:s-1:p-1",
		"delete:e-1",
		"replace:e-2:positive",
		"state:s-1",
		"status",
		"sync",
	}, h.calls)
}

func TestDispatch_ResultFields(t *testing.T) {
	h := &recorder{}
	ctx := context.Background()

	res, err := Dispatch(ctx, h, StartSession{})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "s-1", res.Session.ID)
	assert.Nil(t, res.Outcome)

	res, err = Dispatch(ctx, h, CurrentState{SessionID: "s-1"})
	require.NoError(t, err)
	require.NotNil(t, res.State)
	assert.Equal(t, 2.0, res.State.RunningBalance)

	h.err = domain.NewNotFound(domain.KindSession, "s-9")
	_, err = Dispatch(ctx, h, EndSession{SessionID: "s-9"})
	assert.True(t, domain.IsNotFound(err))
}

func TestApply_AgainstService(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "pacer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := testutil.NewFakeGateway()
	coord := syncer.New(st, gw, "u-1", syncer.WithLogger(logger))
	t.Cleanup(coord.Close)

	svc := core.New(st, coord, gw, "u-1",
		core.WithClock(testutil.NewDeterministicClock(testutil.Epoch)),
		core.WithIDGenerator(testutil.NewSequentialIDs("id")),
		core.WithLogger(logger),
	)

	input := strings.Join([]string{
		`# a short session`,
		`{"type":"start_session"}`,
		`{"type":"append_event","session_id":"id-0001","kind":"positive"}`,
		``,
		`{"type":"append_event","session_id":"id-0001","kind":"positive","weight":2}`,
		`{"type":"start_session"}`,
		`{"type":"current_state","session_id":"id-0001"}`,
		`{"type":"bogus"}`,
	}, "\n")

	var out bytes.Buffer
	stats, err := Apply(context.Background(), strings.NewReader(input), &out, svc)
	require.NoError(t, err)
	assert.Equal(t, Stats{Applied: 4, Failed: 2}, stats)

	var responses []Response
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r Response
		require.NoError(t, dec.Decode(&r))
		responses = append(responses, r)
	}
	require.Len(t, responses, 6)

	assert.Equal(t, 2, responses[0].Line)
	assert.True(t, responses[0].OK)

	second := responses[3]
	assert.False(t, second.OK)
	assert.Equal(t, 6, second.Line)
	assert.Equal(t, domain.CodeConstraint, second.Error.Code)

	state := responses[4]
	require.True(t, state.OK)
	assert.Equal(t, 3.0, state.Result.State.RunningBalance)

	assert.Equal(t, domain.CodeInvalidInput, responses[5].Error.Code)
}

func TestApply_StopsOnStorageFailure(t *testing.T) {
	h := &recorder{err: domain.NewStorageError("start session", io.ErrUnexpectedEOF)}
	input := "{\"type\":\"start_session\"}\n{\"type\":\"start_session\"}\n"

	var out bytes.Buffer
	stats, err := Apply(context.Background(), strings.NewReader(input), &out, h)
	require.Error(t, err)
	assert.True(t, domain.IsLocalStorage(err))
	assert.Equal(t, Stats{Failed: 1}, stats)
	assert.Len(t, h.calls, 1)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}
