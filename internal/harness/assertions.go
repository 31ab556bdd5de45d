package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Command, event.Args)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks for an invocation of the command whose args
// contain the expected ones.
func assertTraceContains(trace []TraceEvent, assertion Assertion, expand func(any) any) error {
	for _, event := range trace {
		if event.Type == EventInvocation && event.Command == assertion.Command {
			if matchArgs(event.Args, assertion.Args, expand) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("command %s with args %v", assertion.Command, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the commands
// appear in order. Other commands may sit between them.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventInvocation {
			continue
		}
		if _, seen := positions[event.Command]; !seen {
			positions[event.Command] = i + 1
		}
	}

	for _, cmd := range assertion.Commands {
		if positions[cmd] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all commands present: %v", assertion.Commands),
				Actual:   fmt.Sprintf("missing command: %s", cmd),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Commands); i++ {
		prev, curr := assertion.Commands[i-1], assertion.Commands[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("commands in order: %v", assertion.Commands),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the command was invoked exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Command == assertion.Command {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Command),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState recomputes the session's state and compares it with
// the expected fields.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	h := actx.Harness
	sessionID, _ := h.expandValue(assertion.Session).(string)

	st, err := h.service.CurrentState(actx.Ctx, sessionID)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state of session %s", sessionID),
			Actual:   fmt.Sprintf("error: %v", err),
		}
	}
	return compareFields(AssertFinalState, stateMap(st), assertion.Expect)
}

// assertSyncStatus compares the sync indicator.
func assertSyncStatus(actx *AssertionContext, assertion Assertion) error {
	snap := actx.Harness.service.SyncStatus()
	actual := map[string]any{
		"status":        string(snap.Status),
		"pending_count": snap.PendingCount,
		"retry_pending": snap.RetryPending,
	}
	return compareFields(AssertSyncStatus, actual, assertion.Expect)
}

// assertRemoteRecords compares record counts held by the fake remote.
func assertRemoteRecords(actx *AssertionContext, assertion Assertion) error {
	sessions, events, presets := actx.Harness.gateway.Counts()
	actual := map[string]any{
		"sessions": sessions,
		"events":   events,
		"presets":  presets,
	}
	return compareFields(AssertRemoteRecords, actual, assertion.Expect)
}

// assertNotifications compares the delivered signals, in order.
func assertNotifications(result *Result, assertion Assertion) error {
	signals := make([]any, len(result.Signals))
	for i, s := range result.Signals {
		signals[i] = s
	}
	actual := map[string]any{
		"signals": signals,
		"count":   len(signals),
	}
	return compareFields(AssertNotifications, actual, assertion.Expect)
}

// compareFields checks expected against actual with subset semantics.
func compareFields(kind string, actual, expected map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present", key),
			}
		}
		if !valuesEqual(got, expected[key]) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q = %v", key, expected[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
			}
		}
	}
	return nil
}

// matchArgs checks if actual args contain all expected args (subset match).
func matchArgs(actual, expected map[string]any, expand func(any) any) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(got, expand(want)) {
			return false
		}
	}
	return true
}

// valuesEqual compares values decoded from YAML with values produced at
// run time. Numbers compare by value regardless of Go type.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if a, ok := toFloat(actual); ok {
		e, ok := toFloat(expected)
		return ok && a == e
	}

	switch a := actual.(type) {
	case []any:
		e, ok := expected.([]any)
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range a {
			if !valuesEqual(a[i], e[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		e, ok := expected.(map[string]any)
		if !ok || len(a) != len(e) {
			return false
		}
		for k, v := range a {
			if !valuesEqual(v, e[k]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// AssertionContext gives assertions access to the finished run.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	expand := func(v any) any { return v }
	if actx != nil && actx.Harness != nil {
		expand = actx.Harness.expandValue
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, expand)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertNotifications:
			err = assertNotifications(result, assertion)
		case AssertFinalState, AssertSyncStatus, AssertRemoteRecords:
			if actx == nil || actx.Harness == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a run context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx, assertion)
			case AssertSyncStatus:
				err = assertSyncStatus(actx, assertion)
			default:
				err = assertRemoteRecords(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

