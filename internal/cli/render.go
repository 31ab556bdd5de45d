package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/pacer/internal/core"
	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/reminder"
	"github.com/roach88/pacer/internal/syncer"
)

const timeLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}

func renderState(w io.Writer, st domain.DerivedState) {
	fmt.Fprintf(w, "Balance:        %s\n", formatNumber(st.RunningBalance))
	fmt.Fprintf(w, "Since break:    %d\n", st.SinceLastNegative)
	fmt.Fprintf(w, "Drinks:         %d (weight %s)\n", st.TotalPositive, formatNumber(st.TotalPositiveWeight))
	fmt.Fprintf(w, "Water:          %d (volume %s)\n", st.TotalNegative, formatNumber(st.TotalNegativeVolume))
	if st.IsWarning {
		fmt.Fprintln(w, "Warning:        balance at or above threshold")
	}
}

func renderSummary(w io.Writer, sessionID string, s domain.SessionSummary) {
	fmt.Fprintf(w, "Session:        %s\n", sessionID)
	fmt.Fprintf(w, "Started:        %s\n", formatTime(s.StartedAt))
	if s.EndedAt != nil {
		fmt.Fprintf(w, "Ended:          %s\n", formatTime(*s.EndedAt))
	}
	fmt.Fprintf(w, "Duration:       %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(w, "Adherence:      %.0f%%\n", s.Adherence*100)
	renderState(w, s.State)
}

func renderOutcome(w io.Writer, verb string, out core.Outcome) {
	if out.EventID != "" {
		fmt.Fprintf(w, "%s event %s\n", verb, out.EventID)
	}
	renderState(w, out.State)
	renderSignals(w, out.Signals)
}

func renderSignals(w io.Writer, signals []reminder.Signal) {
	for _, sig := range signals {
		switch sig {
		case reminder.SignalBreakDue:
			fmt.Fprintln(w, "Reminder: time for a glass of water")
		case reminder.SignalWarning:
			fmt.Fprintln(w, "Reminder: slow down, balance is high")
		default:
			fmt.Fprintf(w, "Reminder: %s\n", sig)
		}
	}
}

func renderSessions(w io.Writer, sessions []domain.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tENDED\tBALANCE\tSYNCED")
	for _, s := range sessions {
		ended, balance := "active", "-"
		if s.EndedAt != nil {
			ended = formatTime(*s.EndedAt)
		}
		if s.Summary != nil {
			balance = formatNumber(s.Summary.State.RunningBalance)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, formatTime(s.StartedAt), ended, balance, yesNo(!s.Dirty))
	}
	tw.Flush()
}

func renderEvents(w io.Writer, events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tKIND\tAMOUNT\tLABEL\tSOURCE")
	for _, e := range events {
		amount := "weight " + formatNumber(e.Weight)
		if e.Kind == domain.EventNegative {
			amount = "volume " + formatNumber(e.Volume)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, formatTime(e.Timestamp), e.Kind, amount, e.Label, e.Source)
	}
	tw.Flush()
}

func renderPresets(w io.Writer, presets []domain.Preset) {
	if len(presets) == 0 {
		fmt.Fprintln(w, "No presets.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tWEIGHT")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.DrinkType, formatNumber(p.Size), formatNumber(p.Weight))
	}
	tw.Flush()
}

func renderSettings(w io.Writer, s domain.UserSettings) {
	fmt.Fprintf(w, "User:                    %s\n", s.UserID)
	fmt.Fprintf(w, "Break due every:         %d drinks\n", s.DueEveryN)
	fmt.Fprintf(w, "Warning threshold:       %s\n", formatNumber(s.WarningThreshold))
	fmt.Fprintf(w, "Reminder interval:       %s\n", s.ReminderInterval)
	fmt.Fprintf(w, "Default water volume:    %s\n", formatNumber(s.DefaultNegativeVolume))
	fmt.Fprintf(w, "Units:                   %s\n", s.Units)
}

func renderSnapshot(w io.Writer, snap syncer.Snapshot) {
	fmt.Fprintf(w, "Sync:     %s\n", snap.Status)
	fmt.Fprintf(w, "Pending:  %d\n", snap.PendingCount)
	if !snap.LastSyncAt.IsZero() {
		fmt.Fprintf(w, "Last:     %s\n", formatTime(snap.LastSyncAt))
	}
	if snap.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", snap.LastError)
	}
	if snap.RetryPending {
		fmt.Fprintln(w, "Retry:    scheduled")
	}
}

func renderReport(w io.Writer, r syncer.Report) {
	switch {
	case r.Offline:
		fmt.Fprintf(w, "Offline: %d records pending\n", r.Pending)
		return
	case r.Coalesced:
		fmt.Fprintf(w, "Sync already running: %d records pending\n", r.Pending)
		return
	}
	total := r.Total()
	parts := []string{fmt.Sprintf("pushed %d", total.Pushed)}
	if total.Failed > 0 {
		parts = append(parts, fmt.Sprintf("failed %d", total.Failed))
	}
	if total.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("skipped %d", total.Skipped))
	}
	fmt.Fprintf(w, "Sync %s: %s, %d pending\n", r.Status, strings.Join(parts, ", "), r.Pending)
	if r.UserFailed {
		fmt.Fprintln(w, "Remote user could not be established; retry scheduled")
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func fmtLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
