// Package core is the public surface of pacer: the operations a UI,
// widget or companion device calls.
//
// Every mutating operation follows the same sequence under one mutex:
// write to the local store, recompute the session's state from its full
// event set, evaluate the reminder policy, then notify the syncer. Only the
// last step is asynchronous; nothing here waits on the network.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/reminder"
	"github.com/roach88/pacer/internal/remote"
	"github.com/roach88/pacer/internal/state"
	"github.com/roach88/pacer/internal/store"
	"github.com/roach88/pacer/internal/syncer"
)

// Syncer is the part of syncer.Coordinator the service drives.
type Syncer interface {
	NotifyDirty()
	PerformSync(ctx context.Context) (syncer.Report, error)
	Status() syncer.Snapshot
	Suspend(ctx context.Context) (resume func(), err error)
}

// Service implements the external operations for one user.
type Service struct {
	store    *store.Store
	syncer   Syncer
	gateway  remote.Gateway
	userID   string
	defaults domain.UserSettings

	policy   *reminder.Policy
	notifier reminder.Notifier
	clock    domain.Clock
	ids      domain.IDGenerator
	logger   *slog.Logger

	// mu serializes mutate, recompute and evaluate so reminder latches
	// observe states in commit order.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for session and event timestamps.
func WithClock(c domain.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the record id generator. Default: UUIDv7.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithNotifier sets the reminder notifier. Default: LogNotifier.
func WithNotifier(n reminder.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDefaults sets the settings used until the user saves their own.
func WithDefaults(d domain.UserSettings) Option {
	return func(s *Service) { s.defaults = d }
}

// New creates a Service. Call Prime once before serving requests if a
// session may already be active.
func New(st *store.Store, sy Syncer, gw remote.Gateway, userID string, opts ...Option) *Service {
	s := &Service{
		store:    st,
		syncer:   sy,
		gateway:  gw,
		userID:   userID,
		defaults: domain.DefaultSettings(userID),
		policy:   reminder.NewPolicy(),
		clock:    domain.SystemClock{},
		ids:      domain.UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.defaults.UserID = userID
	if s.notifier == nil {
		s.notifier = reminder.LogNotifier{Logger: s.logger}
	}
	return s
}

// UserID returns the user the service acts for.
func (s *Service) UserID() string {
	return s.userID
}

// Prime loads the active session, if any, and primes the reminder policy
// from its current state so a restart does not re-fire latched signals.
func (s *Service) Prime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.ActiveSession(ctx, s.userID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return nil
	}
	if err != nil {
		return err
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}
	events, err := s.store.EventsFor(ctx, sess.ID)
	if err != nil {
		return err
	}
	s.policy.Prime(sess.ID, state.Compute(events, settings.WarningThreshold), settings.DueEveryN)
	return nil
}

// StartSession opens a new active session.
// Returns domain.ErrActiveSessionExists if one is already active.
func (s *Service) StartSession(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.ActiveSession(ctx, s.userID); err == nil {
		return domain.Session{}, fmt.Errorf("start session: %w", domain.ErrActiveSessionExists)
	} else if !errors.Is(err, domain.ErrNoActiveSession) {
		return domain.Session{}, err
	}

	sess := domain.Session{
		ID:        s.ids.Generate(),
		UserID:    s.userID,
		StartedAt: s.clock.Now(),
		Active:    true,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	sess.Dirty = true
	sess.Revision = 1
	s.policy.Reset(sess.ID)

	s.logger.Info("session started", "session_id", sess.ID)
	s.syncer.NotifyDirty()
	return sess, nil
}

// EndSession closes a session, caches and returns its summary.
func (s *Service) EndSession(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	if !sess.Active {
		return domain.SessionSummary{}, fmt.Errorf("end session %s: %w", sessionID, domain.ErrSessionEnded)
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	events, err := s.store.EventsFor(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}

	end := s.clock.Now()
	summary := state.Summarize(events, sess.StartedAt, &end, end, settings)
	if err := s.store.EndSession(ctx, sessionID, end, summary); err != nil {
		return domain.SessionSummary{}, err
	}
	s.policy.Reset(sessionID)

	s.logger.Info("session ended",
		"session_id", sessionID,
		"running_balance", summary.State.RunningBalance,
		"adherence", summary.Adherence,
	)
	s.syncer.NotifyDirty()
	return summary, nil
}

// ActiveSession returns the active session or domain.ErrNoActiveSession.
func (s *Service) ActiveSession(ctx context.Context) (domain.Session, error) {
	return s.store.ActiveSession(ctx, s.userID)
}

// Session returns one session.
func (s *Service) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// Sessions lists the user's sessions by start time.
func (s *Service) Sessions(ctx context.Context) ([]domain.Session, error) {
	return s.store.ListSessions(ctx, s.userID)
}

// Events lists a session's events in (timestamp, id) order.
func (s *Service) Events(ctx context.Context, sessionID string) ([]domain.Event, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.EventsFor(ctx, sessionID)
}

// CurrentState recomputes a session's state from its events.
func (s *Service) CurrentState(ctx context.Context, sessionID string) (domain.DerivedState, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return domain.DerivedState{}, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return domain.DerivedState{}, err
	}
	events, err := s.store.EventsFor(ctx, sessionID)
	if err != nil {
		return domain.DerivedState{}, err
	}
	return state.Compute(events, settings.WarningThreshold), nil
}

// Summary returns the summary of a session: the cached one for an ended
// session, or one measured up to now for an active session.
func (s *Service) Summary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	if !sess.Active && sess.Summary != nil {
		return *sess.Summary, nil
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	events, err := s.store.EventsFor(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	return state.Summarize(events, sess.StartedAt, sess.EndedAt, s.clock.Now(), settings), nil
}

// SyncStatus returns the values for a sync indicator.
func (s *Service) SyncStatus() syncer.Snapshot {
	return s.syncer.Status()
}

// TriggerSync runs a sync pass now.
func (s *Service) TriggerSync(ctx context.Context) (syncer.Report, error) {
	return s.syncer.PerformSync(ctx)
}

// NextReminder returns when the next time-based reminder for the active
// session is due, anchored on its latest event (or its start).
func (s *Service) NextReminder(ctx context.Context) (time.Time, bool, error) {
	sess, err := s.store.ActiveSession(ctx, s.userID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	anchor := sess.StartedAt
	if last, ok, err := s.store.LastEventTime(ctx, sess.ID); err != nil {
		return time.Time{}, false, err
	} else if ok && last.After(anchor) {
		anchor = last
	}

	at, ok := reminder.NextTimeReminder(anchor, settings.ReminderInterval)
	return at, ok, nil
}

// FireTimeReminder delivers a time-based reminder for the active session.
// Called by an external scheduler once NextReminder's time has passed.
func (s *Service) FireTimeReminder(ctx context.Context) error {
	sess, err := s.store.ActiveSession(ctx, s.userID)
	if err != nil {
		return err
	}
	st, err := s.CurrentState(ctx, sess.ID)
	if err != nil {
		return err
	}
	s.notify(ctx, sess.ID, st, []reminder.Signal{reminder.SignalTime})
	return nil
}

// ErasureResult reports the outcome of DeleteAllUserData.
type ErasureResult struct {
	RemoteDeleted bool   `json:"remote_deleted"`
	RemoteError   string `json:"remote_error,omitempty"`
}

// DeleteAllUserData purges the user's local records, then asks the remote
// store to delete them. The local purge is authoritative: a remote failure
// is reported in the result, not as an error.
func (s *Service) DeleteAllUserData(ctx context.Context, userID string) (ErasureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// No pass may push records between the local purge and the remote delete.
	resume, err := s.syncer.Suspend(ctx)
	if err != nil {
		return ErasureResult{}, fmt.Errorf("erase user data: %w", err)
	}
	defer resume()

	if err := s.store.PurgeUser(ctx, userID); err != nil {
		return ErasureResult{}, err
	}
	if userID == s.userID {
		s.policy = reminder.NewPolicy()
	}
	s.logger.Info("local user data purged", "user_id", userID)

	var result ErasureResult
	if err := s.gateway.DeleteUser(ctx, userID); err != nil {
		s.logger.Warn("remote user deletion failed", "user_id", userID, "error", err)
		result.RemoteError = err.Error()
	} else {
		result.RemoteDeleted = true
	}

	s.syncer.NotifyDirty()
	return result, nil
}

// notify hands fired signals to the notifier. Delivery failures are
// logged; they never fail the mutation that triggered them.
func (s *Service) notify(ctx context.Context, sessionID string, st domain.DerivedState, signals []reminder.Signal) {
	for _, sig := range signals {
		n := reminder.Notification{
			SessionID: sessionID,
			Signal:    sig,
			State:     st,
			At:        s.clock.Now(),
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("reminder delivery failed", "signal", string(sig), "session_id", sessionID, "error", err)
		}
	}
}
