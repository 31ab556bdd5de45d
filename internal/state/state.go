// Package state derives session state from an event log.
//
// Every function here is a pure fold over events sorted by (timestamp, id).
// There is no incremental path: callers recompute from the full event set
// after any append, delete, or replace, so out-of-order inserts and
// retroactive edits can never leave the derived state stale.
package state

import (
	"time"

	"github.com/roach88/pacer/internal/domain"
)

// Compute replays events into a DerivedState.
// The input may be in any order; it is sorted before folding.
func Compute(events []domain.Event, warningThreshold float64) domain.DerivedState {
	var st domain.DerivedState
	for _, ev := range domain.SortEvents(events) {
		switch ev.Kind {
		case domain.EventPositive:
			st.RunningBalance += ev.Weight
			st.TotalPositiveWeight += ev.Weight
			st.TotalPositive++
			st.SinceLastNegative++
		case domain.EventNegative:
			st.RunningBalance--
			st.TotalNegative++
			st.TotalNegativeVolume += ev.Volume
			st.SinceLastNegative = 0
		}
	}
	st.IsWarning = st.RunningBalance >= warningThreshold
	return st
}

// Adherence returns the fraction of owed breaks that were taken.
//
// A break is owed each time dueEveryN positive events accumulate without a
// negative event. A negative event satisfies at most one outstanding break
// and always resets the positive counter. Returns 1.0 when no break was
// ever owed.
func Adherence(events []domain.Event, dueEveryN int) float64 {
	if dueEveryN < 1 {
		dueEveryN = 1
	}

	var counter, due, satisfied int
	for _, ev := range domain.SortEvents(events) {
		switch ev.Kind {
		case domain.EventPositive:
			counter++
			if counter == dueEveryN {
				due++
				counter = 0
			}
		case domain.EventNegative:
			if due > satisfied {
				satisfied++
			}
			counter = 0
		}
	}

	if due == 0 {
		return 1.0
	}
	return float64(satisfied) / float64(due)
}

// Summarize composes Compute and Adherence with the elapsed duration.
// An open session (end == nil) is measured up to now.
func Summarize(events []domain.Event, start time.Time, end *time.Time, now time.Time, settings domain.UserSettings) domain.SessionSummary {
	stop := now
	if end != nil {
		stop = *end
	}
	duration := stop.Sub(start)
	if duration < 0 {
		duration = 0
	}

	summary := domain.SessionSummary{
		State:     Compute(events, settings.WarningThreshold),
		Adherence: Adherence(events, settings.DueEveryN),
		Duration:  duration,
		StartedAt: start,
	}
	if end != nil {
		e := *end
		summary.EndedAt = &e
	}
	return summary
}
