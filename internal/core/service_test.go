package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pacer/internal/connectivity"
	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/reminder"
	"github.com/roach88/pacer/internal/store"
	"github.com/roach88/pacer/internal/syncer"
	"github.com/roach88/pacer/internal/testutil"
)

const userID = "u-1"

type fixture struct {
	svc     *Service
	store   *store.Store
	gateway *testutil.FakeGateway
	coord   *syncer.Coordinator
	clock   *testutil.DeterministicClock
	notes   *reminder.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "pacer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := testutil.NewFakeGateway()
	coord := syncer.New(st, gw, userID,
		syncer.WithLogger(logger),
		syncer.WithBackOff(backoff.NewConstantBackOff(time.Hour)),
	)
	t.Cleanup(coord.Close)

	clock := testutil.NewDeterministicClock(testutil.Epoch)
	notes := &reminder.Recorder{}
	svc := New(st, coord, gw, userID,
		WithClock(clock),
		WithIDGenerator(testutil.NewSequentialIDs("id")),
		WithNotifier(notes),
		WithLogger(logger),
	)
	return &fixture{svc: svc, store: st, gateway: gw, coord: coord, clock: clock, notes: notes}
}

func (f *fixture) settings(t *testing.T, dueEveryN int, threshold float64) {
	t.Helper()
	s := domain.DefaultSettings(userID)
	s.DueEveryN = dueEveryN
	s.WarningThreshold = threshold
	require.NoError(t, f.svc.UpdateSettings(context.Background(), s))
}

func (f *fixture) log(t *testing.T, sessionID string, kind domain.EventKind) Outcome {
	t.Helper()
	f.clock.Advance(time.Minute)
	out, err := f.svc.AppendEvent(context.Background(), sessionID, NewEvent{Kind: kind, Source: domain.SourcePhone})
	require.NoError(t, err)
	return out
}

func waitStatus(t *testing.T, svc *Service, status syncer.Status, pending int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := svc.SyncStatus()
		return s.Status == status && s.PendingCount == pending
	}, 2*time.Second, 5*time.Millisecond)
}

func ptr(v float64) *float64 { return &v }

func TestStartSession_OnlyOneActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-0001", sess.ID)
	assert.True(t, sess.Active)
	assert.Equal(t, testutil.Epoch, sess.StartedAt)

	_, err = f.svc.StartSession(ctx)
	assert.ErrorIs(t, err, domain.ErrActiveSessionExists)

	sessions, err := f.svc.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestAppendEvent_AppliesDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)

	pos := f.log(t, sess.ID, domain.EventPositive)
	neg := f.log(t, sess.ID, domain.EventNegative)
	_, err = f.svc.AppendEvent(ctx, sess.ID, NewEvent{Kind: domain.EventPositive, Weight: ptr(0)})
	require.NoError(t, err)

	posEv, err := f.store.GetEvent(ctx, pos.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultWeight, posEv.Weight)

	negEv, err := f.store.GetEvent(ctx, neg.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(userID).DefaultNegativeVolume, negEv.Volume)

	st, err := f.svc.CurrentState(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.RunningBalance)
	assert.Equal(t, 2, st.TotalPositive)
	assert.Equal(t, 1, st.SinceLastNegative, "a zero-weight positive still counts")
}

func TestAppendEvent_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AppendEvent(ctx, "missing", NewEvent{Kind: domain.EventPositive})
	assert.True(t, domain.IsNotFound(err))

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.AppendEvent(ctx, sess.ID, NewEvent{Kind: "sideways"})
	assert.True(t, domain.IsInvalidInput(err))

	_, err = f.svc.AppendEvent(ctx, sess.ID, NewEvent{Kind: domain.EventPositive, Weight: ptr(-1)})
	assert.True(t, domain.IsInvalidInput(err))

	events, err := f.svc.Events(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeleteEvent_RecomputesAndWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settings(t, 3, 2)

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)

	f.log(t, sess.ID, domain.EventPositive)
	f.log(t, sess.ID, domain.EventPositive)
	neg := f.log(t, sess.ID, domain.EventNegative)

	assert.Equal(t, 1.0, neg.State.RunningBalance)
	assert.False(t, neg.State.IsWarning)
	assert.Equal(t, 0, neg.State.SinceLastNegative)

	out, err := f.svc.DeleteEvent(ctx, neg.EventID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.State.RunningBalance)
	assert.True(t, out.State.IsWarning)
	assert.Equal(t, sess.ID, out.SessionID)

	// The warning fired once on the second positive, cleared on the
	// negative, and fires again when the delete crosses the threshold.
	assert.Equal(t, []reminder.Signal{reminder.SignalWarning, reminder.SignalWarning}, f.notes.Signals())

	_, err = f.svc.DeleteEvent(ctx, neg.EventID)
	assert.True(t, domain.IsNotFound(err))
}

func TestReminders_FireOncePerTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settings(t, 2, 10)

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)

	assert.Empty(t, f.log(t, sess.ID, domain.EventPositive).Signals)
	assert.Equal(t, []reminder.Signal{reminder.SignalBreakDue}, f.log(t, sess.ID, domain.EventPositive).Signals)
	assert.Empty(t, f.log(t, sess.ID, domain.EventPositive).Signals, "latched")
	assert.Empty(t, f.log(t, sess.ID, domain.EventNegative).Signals, "recovery is silent")
	assert.Empty(t, f.log(t, sess.ID, domain.EventPositive).Signals)
	assert.Equal(t, []reminder.Signal{reminder.SignalBreakDue}, f.log(t, sess.ID, domain.EventPositive).Signals)

	sent := f.notes.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sess.ID, sent[0].SessionID)
	assert.Equal(t, 2, sent[0].State.SinceLastNegative)
}

func TestPrime_DoesNotRefireAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settings(t, 1, 1)

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	f.log(t, sess.ID, domain.EventPositive)
	require.Len(t, f.notes.Signals(), 2)

	notes := &reminder.Recorder{}
	restarted := New(f.store, f.coord, f.gateway, userID,
		WithClock(f.clock),
		WithIDGenerator(testutil.NewSequentialIDs("restart")),
		WithNotifier(notes),
	)
	require.NoError(t, restarted.Prime(ctx))

	_, err = restarted.AppendEvent(ctx, sess.ID, NewEvent{Kind: domain.EventPositive})
	require.NoError(t, err)
	assert.Empty(t, notes.Signals())
}

func TestEndSession_CachesSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settings(t, 1, 5)

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	first := f.log(t, sess.ID, domain.EventPositive)
	f.log(t, sess.ID, domain.EventPositive)
	f.log(t, sess.ID, domain.EventNegative)
	f.clock.Advance(time.Hour)

	summary, err := f.svc.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, summary.State.RunningBalance)
	assert.InDelta(t, 0.5, summary.Adherence, 1e-9)
	assert.Equal(t, 63*time.Minute, summary.Duration)

	_, err = f.svc.EndSession(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionEnded)

	_, err = f.svc.ActiveSession(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	cached, err := f.svc.Summary(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, summary, cached)

	// A retroactive edit rewrites the cached summary and re-dirties the session.
	f.coord.Wait()
	_, err = f.svc.ReplaceEvent(ctx, first.EventID, domain.Payload{Kind: domain.EventPositive, Weight: 3})
	require.NoError(t, err)

	ended, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, ended.Summary)
	assert.Equal(t, 3.0, ended.Summary.State.RunningBalance)
	assert.Equal(t, 63*time.Minute, ended.Summary.Duration)

	// New sessions can start once the previous one ended.
	_, err = f.svc.StartSession(ctx)
	require.NoError(t, err)
}

func TestReplaceEvent_KeepsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	out := f.log(t, sess.ID, domain.EventPositive)
	before, err := f.store.GetEvent(ctx, out.EventID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	replaced, err := f.svc.ReplaceEvent(ctx, out.EventID, domain.Payload{Kind: domain.EventNegative, Volume: 330})
	require.NoError(t, err)
	assert.Equal(t, -1.0, replaced.State.RunningBalance)

	after, err := f.store.GetEvent(ctx, out.EventID)
	require.NoError(t, err)
	assert.Equal(t, before.Timestamp, after.Timestamp)
	assert.Equal(t, domain.EventNegative, after.Kind)
	assert.Equal(t, 330.0, after.Volume)

	_, err = f.svc.ReplaceEvent(ctx, out.EventID, domain.Payload{Kind: domain.EventPositive, Weight: -2})
	assert.True(t, domain.IsInvalidInput(err))
}

func TestAppendPreset_CopiesPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	preset, err := f.svc.SavePreset(ctx, PresetInput{Name: "Pint", DrinkType: "beer", Size: 568, Weight: 2})
	require.NoError(t, err)

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	out, err := f.svc.AppendPreset(ctx, sess.ID, preset.ID, domain.SourceWatch)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.State.RunningBalance)

	require.NoError(t, f.svc.DeletePreset(ctx, preset.ID))
	ev, err := f.store.GetEvent(ctx, out.EventID)
	require.NoError(t, err)
	assert.Equal(t, preset.ID, ev.PresetID)
	assert.Equal(t, "Pint", ev.Label)
	assert.Equal(t, 2.0, ev.Weight)
	assert.Equal(t, domain.SourceWatch, ev.Source)

	_, err = f.svc.AppendPreset(ctx, sess.ID, preset.ID, domain.SourcePhone)
	assert.True(t, domain.IsNotFound(err))
}

func TestPresets_UpdateAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SavePreset(ctx, PresetInput{Name: "  "})
	assert.True(t, domain.IsInvalidInput(err))

	p, err := f.svc.SavePreset(ctx, PresetInput{Name: "Café", Weight: 1})
	require.NoError(t, err)
	assert.Equal(t, "Café", p.Name)

	updated, err := f.svc.UpdatePreset(ctx, p.ID, PresetInput{Name: "Double", Weight: 2})
	require.NoError(t, err)
	assert.Equal(t, "Double", updated.Name)
	assert.Equal(t, int64(2), updated.Revision)

	presets, err := f.svc.Presets(ctx)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	assert.Equal(t, 2.0, presets[0].Weight)
}

func TestSettings_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(userID), s)

	s.DueEveryN = 0
	assert.True(t, domain.IsInvalidInput(f.svc.UpdateSettings(ctx, s)))

	s.DueEveryN = 4
	s.Units = domain.UnitsImperial
	require.NoError(t, f.svc.UpdateSettings(ctx, s))

	got, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got.DueEveryN)
	assert.Equal(t, domain.UnitsImperial, got.Units)
}

func TestWithDefaults(t *testing.T) {
	f := newFixture(t)
	d := domain.DefaultSettings("ignored")
	d.DueEveryN = 7
	svc := New(f.store, f.coord, f.gateway, userID, WithDefaults(d))

	s, err := svc.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, s.DueEveryN)
	assert.Equal(t, userID, s.UserID)
}

func TestNextReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.svc.NextReminder(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no active session")

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	interval := domain.DefaultSettings(userID).ReminderInterval

	at, ok, err := f.svc.NextReminder(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testutil.Epoch.Add(interval), at)

	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.AppendEvent(ctx, sess.ID, NewEvent{Kind: domain.EventPositive})
	require.NoError(t, err)

	at, ok, err = f.svc.NextReminder(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testutil.Epoch.Add(5*time.Minute+interval), at)

	require.NoError(t, f.svc.FireTimeReminder(ctx))
	assert.Equal(t, []reminder.Signal{reminder.SignalTime}, f.notes.Signals())
}

func TestDeleteAllUserData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	f.log(t, sess.ID, domain.EventPositive)
	_, err = f.svc.SavePreset(ctx, PresetInput{Name: "Pint", Weight: 1})
	require.NoError(t, err)

	_, err = f.svc.TriggerSync(ctx)
	require.NoError(t, err)
	f.coord.Wait()
	require.True(t, f.gateway.HasUser(userID))

	result, err := f.svc.DeleteAllUserData(ctx, userID)
	require.NoError(t, err)
	assert.True(t, result.RemoteDeleted)
	assert.False(t, f.gateway.HasUser(userID))

	sessions, err := f.svc.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	presets, err := f.svc.Presets(ctx)
	require.NoError(t, err)
	assert.Empty(t, presets)

	f.coord.Wait()
	assert.Equal(t, 0, f.svc.SyncStatus().PendingCount)
}

func TestDeleteAllUserData_WaitsForInFlightSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	release := f.gateway.Block()
	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.gateway.CallCount("upsert_user") == 1
	}, 2*time.Second, 5*time.Millisecond, "pass should be blocked on the remote")

	type erased struct {
		result ErasureResult
		err    error
	}
	done := make(chan erased, 1)
	go func() {
		result, err := f.svc.DeleteAllUserData(ctx, userID)
		done <- erased{result, err}
	}()
	require.Eventually(t, func() bool { return f.coord.Status().Suspended }, 2*time.Second, 5*time.Millisecond)

	release()
	var out erased
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("erasure never finished")
	}
	require.NoError(t, out.err)
	assert.True(t, out.result.RemoteDeleted)
	f.coord.Wait()

	_, ok := f.gateway.Session(sess.ID)
	assert.False(t, ok, "session pushed by the in-flight pass must be erased")
	assert.False(t, f.gateway.HasUser(userID))
	sessions, events, presets := f.gateway.Counts()
	assert.Zero(t, sessions+events+presets)

	snap := f.svc.SyncStatus()
	assert.False(t, snap.Suspended)
	assert.Equal(t, 0, snap.PendingCount)
}

func TestDeleteAllUserData_RemoteFailureIsReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	f.coord.Wait()
	f.gateway.SetOffline(true)

	result, err := f.svc.DeleteAllUserData(ctx, userID)
	require.NoError(t, err)
	assert.False(t, result.RemoteDeleted)
	assert.NotEmpty(t, result.RemoteError)

	_, err = f.svc.ActiveSession(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestOfflineLoggingThenRestore(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := connectivity.NewManual(true)
	f.coord.Start(ctx, monitor)

	f.gateway.SetOffline(true)
	sess, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	waitStatus(t, f.svc, syncer.StatusError, 1)

	for i := 0; i < 3; i++ {
		f.log(t, sess.ID, domain.EventPositive)
		waitStatus(t, f.svc, syncer.StatusError, i+2)
	}
	st, err := f.svc.CurrentState(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, st.RunningBalance)

	monitor.Set(false)
	require.Eventually(t, func() bool { return f.svc.SyncStatus().Status == syncer.StatusOffline }, 2*time.Second, 5*time.Millisecond)

	f.gateway.SetOffline(false)
	monitor.Set(true)
	waitStatus(t, f.svc, syncer.StatusIdle, 0)

	sessions, events, _ := f.gateway.Counts()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 3, events)
}
