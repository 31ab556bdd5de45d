package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pacer/internal/domain"
)

// Notification is handed to a Notifier when a signal fires.
type Notification struct {
	SessionID string
	Signal    Signal
	State     domain.DerivedState
	At        time.Time
}

// Notifier delivers notifications. Wording, discretion filtering and the
// delivery channel are the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "reminder",
		"signal", string(n.Signal),
		"session_id", n.SessionID,
		"running_balance", n.State.RunningBalance,
		"since_last_negative", n.State.SinceLastNegative,
		"at", n.At,
	)
	return nil
}

// Recorder is a Notifier that keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Signals returns the recorded signals in delivery order.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Signal
	}
	return out
}
