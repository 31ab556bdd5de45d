// Package reminder decides when value-based reminders fire.
//
// Policy keeps one latch pair per session. A signal fires on the transition
// into its condition and is then latched until the condition clears, so a
// run of positive events above the threshold produces a single warning.
// Delivery is delegated to a Notifier.
package reminder

import (
	"sync"
	"time"

	"github.com/roach88/pacer/internal/domain"
)

// Signal is an advisory output of the policy.
type Signal string

const (
	// SignalWarning fires when the running balance crosses the warning threshold.
	SignalWarning Signal = "warning"
	// SignalBreakDue fires when enough positive events accumulated since the last negative.
	SignalBreakDue Signal = "break_due"
	// SignalTime is raised by time-based schedulers, never by Policy.
	SignalTime Signal = "time"
)

// latch holds the per-session state machine.
// warned is the Normal/Warned state; breakDue latches the due-count trigger.
type latch struct {
	warned   bool
	breakDue bool
}

// Policy is safe for concurrent use.
type Policy struct {
	mu       sync.Mutex
	sessions map[string]*latch
}

// NewPolicy creates a policy with no primed sessions.
func NewPolicy() *Policy {
	return &Policy{sessions: make(map[string]*latch)}
}

// Evaluate advances the session's state machine with a freshly recomputed
// state and returns the signals that fire on this transition, in a fixed
// order (warning before break due). Recovery transitions are silent.
func (p *Policy) Evaluate(sessionID string, st domain.DerivedState, dueEveryN int) []Signal {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.latchFor(sessionID)
	var signals []Signal

	if st.IsWarning {
		if !l.warned {
			signals = append(signals, SignalWarning)
		}
		l.warned = true
	} else {
		l.warned = false
	}

	due := dueEveryN >= 1 && st.SinceLastNegative >= dueEveryN
	if due && !l.breakDue {
		signals = append(signals, SignalBreakDue)
	}
	l.breakDue = due

	return signals
}

// Prime sets the latches from an existing state without firing.
// Used when a process restarts with a session already active.
func (p *Policy) Prime(sessionID string, st domain.DerivedState, dueEveryN int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.latchFor(sessionID)
	l.warned = st.IsWarning
	l.breakDue = dueEveryN >= 1 && st.SinceLastNegative >= dueEveryN
}

// Reset forgets a session, typically when it ends.
func (p *Policy) Reset(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, sessionID)
}

// Warned reports whether the session is in the Warned state.
func (p *Policy) Warned(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.sessions[sessionID]
	return ok && l.warned
}

func (p *Policy) latchFor(sessionID string) *latch {
	l, ok := p.sessions[sessionID]
	if !ok {
		l = &latch{}
		p.sessions[sessionID] = l
	}
	return l
}

// NextTimeReminder returns when a time-based reminder is due, anchored on
// the last event of the session. ok is false when interval disables
// time-based reminders.
func NextTimeReminder(lastEvent time.Time, interval time.Duration) (at time.Time, ok bool) {
	if interval <= 0 {
		return time.Time{}, false
	}
	return lastEvent.Add(interval), true
}
