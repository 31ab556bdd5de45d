package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/pacer/internal/command"
	"github.com/roach88/pacer/internal/core"
	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/reminder"
	"github.com/roach88/pacer/internal/store"
	"github.com/roach88/pacer/internal/syncer"
	"github.com/roach88/pacer/internal/testutil"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store   *store.Store
	service *core.Service
	coord   *syncer.Coordinator
	gateway *testutil.FakeGateway
	clock   *testutil.DeterministicClock
	notes   *reminder.Recorder
	logger  *slog.Logger

	// lastSession and lastEvent back the $session and $event references.
	lastSession string
	lastEvent   string
}

// Run executes a scenario in a fresh in-memory store and returns the
// result. An error is returned only when the run itself could not proceed;
// failed expectations are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	userID := scenario.UserID
	if userID == "" {
		userID = DefaultUserID
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock(testutil.Epoch)
	gw := testutil.NewFakeGateway()

	// Retries never fire during a run; recovery is always explicit.
	coord := syncer.New(st, gw, userID,
		syncer.WithLogger(logger),
		syncer.WithClock(clock),
		syncer.WithBackOff(backoff.NewConstantBackOff(24*time.Hour)),
	)
	defer coord.Close()

	notes := &reminder.Recorder{}
	svc := core.New(st, coord, gw, userID,
		core.WithClock(clock),
		core.WithIDGenerator(testutil.NewSequentialIDs("id")),
		core.WithNotifier(notes),
		core.WithLogger(logger),
	)

	h := &Harness{
		store:   st,
		service: svc,
		coord:   coord,
		gateway: gw,
		clock:   clock,
		notes:   notes,
		logger:  logger,
	}

	if err := h.applySettings(ctx, scenario.Settings); err != nil {
		return nil, fmt.Errorf("failed to apply settings: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	coord.Wait()

	for _, sig := range notes.Signals() {
		result.Signals = append(result.Signals, string(sig))
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) applySettings(ctx context.Context, o *SettingsOverride) error {
	if o == nil {
		return nil
	}
	settings, err := h.service.Settings(ctx)
	if err != nil {
		return err
	}
	if o.DueEveryN != nil {
		settings.DueEveryN = *o.DueEveryN
	}
	if o.WarningThreshold != nil {
		settings.WarningThreshold = *o.WarningThreshold
	}
	if o.DefaultNegativeVolume != nil {
		settings.DefaultNegativeVolume = *o.DefaultNegativeVolume
	}
	if o.ReminderInterval != "" {
		d, err := time.ParseDuration(o.ReminderInterval)
		if err != nil {
			return err
		}
		settings.ReminderInterval = d
	}
	return h.service.UpdateSettings(ctx, settings)
}

// executeFlow runs every step. Background sync passes are drained after
// each one so the next step observes a settled status.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		switch {
		case step.Advance != "":
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			h.clock.Advance(d)

		case step.Remote != "":
			h.gateway.SetOffline(step.Remote == "offline")

		default:
			if err := h.invoke(ctx, i, step, result); err != nil {
				return err
			}
		}
		h.coord.Wait()
	}
	return nil
}

func (h *Harness) invoke(ctx context.Context, i int, step FlowStep, result *Result) error {
	args := h.expand(step.Args)
	result.AddInvocationTrace(step.Invoke, args)

	wire := map[string]any{"type": step.Invoke}
	for k, v := range args {
		wire[k] = v
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("flow step %d: encode command: %w", i, err)
	}

	var (
		outputCase = CaseOK
		projected  map[string]any
	)
	cmd, err := command.Decode(data)
	if err == nil {
		var res command.Result
		res, err = command.Dispatch(ctx, h.service, cmd)
		if err == nil {
			h.remember(res)
			projected = project(res)
		}
	}
	if err != nil {
		if domain.IsLocalStorage(err) {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		outputCase = caseOf(err)
	}
	result.AddCompletionTrace(outputCase, projected)

	h.logger.Info("flow step completed",
		"step", i,
		"command", step.Invoke,
		"output_case", outputCase,
	)

	if step.Expect == nil {
		if outputCase != CaseOK {
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected failure: %v", i, step.Invoke, err))
		}
		return nil
	}
	if step.Expect.Case != outputCase {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Invoke, step.Expect.Case, outputCase))
		return nil
	}
	for key, want := range step.Expect.Result {
		got, ok := projected[key]
		if !ok {
			result.AddError(fmt.Sprintf("flow[%d] %s: result field %q missing", i, step.Invoke, key))
			continue
		}
		if !valuesEqual(got, h.expandValue(want)) {
			result.AddError(fmt.Sprintf("flow[%d] %s: result field %q = %v, want %v", i, step.Invoke, key, got, want))
		}
	}
	return nil
}

func (h *Harness) remember(res command.Result) {
	if res.Session != nil {
		h.lastSession = res.Session.ID
	}
	if res.Outcome != nil && res.Outcome.EventID != "" {
		h.lastEvent = res.Outcome.EventID
	}
}

// expand substitutes $session and $event in top-level string args.
func (h *Harness) expand(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = h.expandValue(v)
	}
	return out
}

func (h *Harness) expandValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "$session":
		return h.lastSession
	case "$event":
		return h.lastEvent
	}
	return s
}

func caseOf(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

// project reduces a command result to the deterministic fields recorded
// in traces.
func project(res command.Result) map[string]any {
	switch {
	case res.Session != nil:
		return map[string]any{
			"session_id": res.Session.ID,
			"active":     res.Session.Active,
		}
	case res.Summary != nil:
		m := stateMap(res.Summary.State)
		m["adherence"] = res.Summary.Adherence
		m["duration"] = res.Summary.Duration.String()
		return m
	case res.Outcome != nil:
		m := stateMap(res.Outcome.State)
		m["session_id"] = res.Outcome.SessionID
		if res.Outcome.EventID != "" {
			m["event_id"] = res.Outcome.EventID
		}
		if len(res.Outcome.Signals) > 0 {
			signals := make([]any, len(res.Outcome.Signals))
			for i, s := range res.Outcome.Signals {
				signals[i] = string(s)
			}
			m["signals"] = signals
		}
		return m
	case res.State != nil:
		return stateMap(*res.State)
	case res.Status != nil:
		return map[string]any{
			"status":        string(res.Status.Status),
			"pending_count": res.Status.PendingCount,
		}
	case res.Report != nil:
		total := res.Report.Total()
		return map[string]any{
			"status":  string(res.Report.Status),
			"pending": res.Report.Pending,
			"pushed":  total.Pushed,
			"failed":  total.Failed,
			"skipped": total.Skipped,
		}
	}
	return nil
}

func stateMap(st domain.DerivedState) map[string]any {
	return map[string]any{
		"running_balance":     st.RunningBalance,
		"since_last_negative": st.SinceLastNegative,
		"total_positive":      st.TotalPositive,
		"total_negative":      st.TotalNegative,
		"is_warning":          st.IsWarning,
	}
}

// String renders a result for humans, e.g. in `pacer test` output.
func (r *Result) String() string {
	if r.Pass {
		return "PASS"
	}
	return "FAIL\n  " + strings.Join(r.Errors, "\n  ")
}
