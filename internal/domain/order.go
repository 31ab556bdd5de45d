package domain

import (
	"slices"
	"strings"
)

// CompareEvents orders events by timestamp, breaking ties by id.
// This is the only ordering the state engine and the store agree on.
func CompareEvents(a, b Event) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortEvents returns a sorted copy of events. The input is not modified.
func SortEvents(events []Event) []Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, CompareEvents)
	return sorted
}
