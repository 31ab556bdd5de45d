package syncer

import (
	"time"

	"github.com/roach88/pacer/internal/domain"
)

// Status is the aggregate sync state shown to the user.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Snapshot is a read-only view for a sync indicator.
type Snapshot struct {
	Status       Status    `json:"status"`
	PendingCount int       `json:"pending_count"`
	LastSyncAt   time.Time `json:"last_sync_at,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	RetryPending bool      `json:"retry_pending"`

	// Suspended is set while user data is being erased.
	Suspended bool `json:"suspended,omitempty"`
}

// KindReport counts the outcome of one record kind within a pass.
type KindReport struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`

	// Skipped events belong to a session whose push failed in the same pass.
	Skipped int `json:"skipped"`

	// Stale records were pushed but modified locally before they could be
	// marked clean; they stay dirty for the next pass.
	Stale int `json:"stale"`
}

// Report summarizes a PerformSync call.
type Report struct {
	// Passes is the number of passes run, including coalesced resyncs.
	Passes int `json:"passes"`

	// Coalesced is set when the call folded into a pass already in flight.
	Coalesced bool `json:"coalesced,omitempty"`

	// Offline is set when no pass ran because connectivity is down.
	Offline bool `json:"offline,omitempty"`

	// UserFailed is set when the remote user could not be established.
	UserFailed bool `json:"user_failed,omitempty"`

	Kinds   map[domain.RecordKind]KindReport `json:"kinds,omitempty"`
	Pending int                              `json:"pending"`
	Status  Status                           `json:"status"`
}

// Total sums the per-kind counts.
func (r Report) Total() KindReport {
	var total KindReport
	for _, k := range r.Kinds {
		total.Pushed += k.Pushed
		total.Failed += k.Failed
		total.Skipped += k.Skipped
		total.Stale += k.Stale
	}
	return total
}

func (r *Report) add(other Report) {
	if r.Kinds == nil {
		r.Kinds = make(map[domain.RecordKind]KindReport)
	}
	for kind, k := range other.Kinds {
		acc := r.Kinds[kind]
		acc.Pushed += k.Pushed
		acc.Failed += k.Failed
		acc.Skipped += k.Skipped
		acc.Stale += k.Stale
		r.Kinds[kind] = acc
	}
	r.Passes += other.Passes
	r.UserFailed = r.UserFailed || other.UserFailed
	r.Pending = other.Pending
	r.Status = other.Status
}
