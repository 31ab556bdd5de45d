package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/pacer/internal/connectivity"
	"github.com/roach88/pacer/internal/domain"
	"github.com/roach88/pacer/internal/remote"
)

// Store is the slice of the local store a sync pass needs.
type Store interface {
	Pending(ctx context.Context, kind domain.RecordKind) ([]domain.Envelope, error)
	MarkClean(ctx context.Context, kind domain.RecordKind, id string, revision int64) (bool, error)
	PendingCount(ctx context.Context) (int, error)
}

// Coordinator keeps the remote store eventually consistent with local
// dirty records.
type Coordinator struct {
	store    Store
	gateway  remote.Gateway
	userID   string
	clock    domain.Clock
	logger   *slog.Logger
	metrics  *Metrics
	backoff  backoff.BackOff
	onStatus func(Snapshot)

	// baseCtx bounds background passes and watchers; cancelled by Close.
	baseCtx  context.Context
	cancel   context.CancelFunc
	passes   sync.WaitGroup
	watchers sync.WaitGroup

	mu         sync.Mutex
	status     Status
	pending    int
	syncing    bool
	resync     bool
	idle       chan struct{}
	suspended  int
	deferred   bool
	online     bool
	closed     bool
	retryTimer *time.Timer
	lastSyncAt time.Time
	lastErr    string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock sets the clock used for LastSyncAt.
func WithClock(clock domain.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithBackOff sets the delay schedule for retries after the remote user
// could not be established. Default: exponential, 2s initial, 5m max,
// never giving up.
func WithBackOff(b backoff.BackOff) Option {
	return func(c *Coordinator) { c.backoff = b }
}

// WithStatusHook registers a function called after every status change.
// It runs on the goroutine that made the change and must not block.
func WithStatusHook(fn func(Snapshot)) Option {
	return func(c *Coordinator) { c.onStatus = fn }
}

// WithOffline starts the coordinator disconnected. Mutations stay dirty
// until a monitor passed to Start reports connectivity.
func WithOffline() Option {
	return func(c *Coordinator) {
		c.online = false
		c.status = StatusOffline
	}
}

// NewExponentialBackOff returns the default retry schedule.
func NewExponentialBackOff(initial, max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// New creates a Coordinator for one user. It starts online so PerformSync
// works without a connectivity monitor; Start replaces that assumption
// with the monitor's view.
func New(st Store, gw remote.Gateway, userID string, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:   st,
		gateway: gw,
		userID:  userID,
		clock:   domain.SystemClock{},
		logger:  slog.Default(),
		backoff: NewExponentialBackOff(2*time.Second, 5*time.Minute),
		baseCtx: ctx,
		cancel:  cancel,
		status:  StatusIdle,
		online:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start observes connectivity. On a transition to connected the Offline
// status clears and a pass starts; on a transition to disconnected the
// status becomes Offline once any in-flight pass concludes. Start returns
// immediately; observation stops when ctx is done.
func (c *Coordinator) Start(ctx context.Context, monitor connectivity.Monitor) {
	watchCtx, stop := context.WithCancel(ctx)
	context.AfterFunc(c.baseCtx, stop)

	updates := monitor.Watch(watchCtx)
	c.watchers.Add(1)
	go func() {
		defer c.watchers.Done()
		defer stop()
		for online := range updates {
			c.setOnline(online)
		}
	}()
}

func (c *Coordinator) setOnline(online bool) {
	c.mu.Lock()
	was := c.online
	c.online = online

	if !online {
		if !c.syncing {
			c.status = StatusOffline
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if was {
			c.logger.Info("sync offline")
		}
		c.emit(snap)
		return
	}
	c.mu.Unlock()

	if !was {
		c.logger.Info("sync online")
	}
	// Treat every connected report as a trigger so the first report
	// after startup drains records left dirty by a previous run.
	c.NotifyDirty()
}

// NotifyDirty requests a sync pass after a local mutation. It never
// blocks on network I/O. While a pass is running the request is folded
// into a single follow-up pass.
func (c *Coordinator) NotifyDirty() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.suspended > 0 {
		c.deferred = true
		c.mu.Unlock()
		return
	}
	if c.syncing {
		c.resync = true
		c.mu.Unlock()
		return
	}
	if !c.online {
		c.status = StatusOffline
		c.mu.Unlock()
		c.refreshPending(c.baseCtx)
		return
	}
	c.beginLocked()
	c.passes.Add(1)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	go func() {
		defer c.passes.Done()
		if _, err := c.drain(c.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("background sync failed", "error", err)
		}
	}()
}

// PerformSync runs a sync pass on the calling goroutine and returns its
// report. If a pass is already in flight it requests a resync and returns
// a Coalesced report without waiting. The only errors returned are local
// storage failures; remote failures are reflected in the report and
// status.
func (c *Coordinator) PerformSync(ctx context.Context) (Report, error) {
	c.mu.Lock()
	if c.suspended > 0 {
		c.deferred = true
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return Report{Coalesced: true, Pending: snap.PendingCount, Status: snap.Status}, nil
	}
	if c.syncing {
		c.resync = true
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return Report{Coalesced: true, Pending: snap.PendingCount, Status: snap.Status}, nil
	}
	if !c.online {
		c.status = StatusOffline
		c.mu.Unlock()
		c.refreshPending(ctx)
		snap := c.Status()
		return Report{Offline: true, Pending: snap.PendingCount, Status: StatusOffline}, nil
	}
	c.beginLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	return c.drain(ctx)
}

// Suspend stops new passes and waits for an in-flight pass to conclude.
// Requests made while suspended run as one pass after the last resume.
// If ctx ends first the suspension is released and ctx's error returned.
func (c *Coordinator) Suspend(ctx context.Context) (resume func(), err error) {
	c.mu.Lock()
	c.suspended++
	idle := c.idle
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	var once sync.Once
	resume = func() { once.Do(c.resume) }
	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			resume()
			return nil, ctx.Err()
		}
	}
	return resume, nil
}

func (c *Coordinator) resume() {
	c.mu.Lock()
	c.suspended--
	run := c.suspended == 0 && c.deferred
	if run {
		c.deferred = false
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	if run {
		c.NotifyDirty()
	}
}

// Status returns the current indicator values.
func (c *Coordinator) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Refresh recounts pending records without running a pass. Used at
// startup so the indicator reflects records left dirty by a previous run.
func (c *Coordinator) Refresh(ctx context.Context) error {
	n, err := c.store.PendingCount(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pending = n
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.metrics.setPending(n)
	c.emit(snap)
	return nil
}

// Wait blocks until no background pass is in flight.
func (c *Coordinator) Wait() {
	c.passes.Wait()
}

// Close cancels background passes, stops the retry timer and waits for
// in-flight work.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.passes.Wait()
	c.watchers.Wait()
}

// drain runs passes until no resync was requested. The caller must have
// set syncing. syncing is cleared before drain returns.
func (c *Coordinator) drain(ctx context.Context) (Report, error) {
	var total Report
	for {
		report, err := c.pass(ctx)
		total.add(report)

		c.mu.Lock()
		requested := c.resync
		c.resync = false
		again := requested && c.online && err == nil && !report.UserFailed && !c.closed && c.suspended == 0
		if again {
			c.status = StatusSyncing
			c.mu.Unlock()
			continue
		}
		c.syncing = false
		close(c.idle)
		c.idle = nil
		if !c.online {
			c.status = StatusOffline
			total.Status = StatusOffline
		}
		// A request folded into a pass that failed locally still gets its
		// pass; one made while suspended waits for resume.
		followUp := false
		if requested && !c.closed {
			if c.suspended > 0 {
				c.deferred = true
			} else {
				followUp = err != nil
			}
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.emit(snap)
		if followUp {
			c.NotifyDirty()
		}
		return total, err
	}
}

// pass performs one snapshot-push-mark cycle.
func (c *Coordinator) pass(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{Passes: 1, Kinds: make(map[domain.RecordKind]KindReport)}

	snapshot := make(map[domain.RecordKind][]domain.Envelope, len(domain.SyncOrder))
	total := 0
	for _, kind := range domain.SyncOrder {
		envs, err := c.store.Pending(ctx, kind)
		if err != nil {
			return c.finish(ctx, report, start, StatusError, err)
		}
		snapshot[kind] = envs
		total += len(envs)
	}

	if total == 0 {
		c.mu.Lock()
		c.lastSyncAt = c.clock.Now()
		c.lastErr = ""
		c.mu.Unlock()
		return c.finish(ctx, report, start, StatusIdle, nil)
	}

	if err := c.gateway.UpsertUser(ctx, c.userID); err != nil {
		c.logger.Warn("sync aborted: remote user unavailable", "user_id", c.userID, "error", err)
		report.UserFailed = true
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.scheduleRetry()
		return c.finish(ctx, report, start, StatusError, nil)
	}
	c.resetRetry()

	failedSessions := make(map[string]bool)
	var lastErr error
	for _, kind := range domain.SyncOrder {
		kr := report.Kinds[kind]
		for _, env := range snapshot[kind] {
			if parent := env.ParentID(); parent != "" && failedSessions[parent] {
				kr.Skipped++
				continue
			}

			if _, err := remote.Push(ctx, c.gateway, env); err != nil {
				kr.Failed++
				lastErr = err
				if kind == domain.KindSession {
					failedSessions[env.ID] = true
				}
				c.logger.Warn("sync push failed", "kind", string(kind), "id", env.ID, "error", err)
				continue
			}

			cleared, err := c.store.MarkClean(ctx, kind, env.ID, env.Revision)
			if err != nil {
				report.Kinds[kind] = kr
				return c.finish(ctx, report, start, StatusError, err)
			}
			kr.Pushed++
			if !cleared {
				kr.Stale++
				c.logger.Debug("record changed during sync, left dirty", "kind", string(kind), "id", env.ID)
			}
		}
		report.Kinds[kind] = kr
	}

	c.mu.Lock()
	c.lastSyncAt = c.clock.Now()
	if lastErr != nil {
		c.lastErr = lastErr.Error()
	} else {
		c.lastErr = ""
	}
	c.mu.Unlock()

	return c.finish(ctx, report, start, "", nil)
}

// finish recomputes the pending count and settles the pass status. An
// empty status means Idle when nothing is pending and Error otherwise.
func (c *Coordinator) finish(ctx context.Context, report Report, start time.Time, status Status, err error) (Report, error) {
	pending, countErr := c.store.PendingCount(context.WithoutCancel(ctx))
	if err == nil && countErr != nil {
		err = countErr
	}

	c.mu.Lock()
	if countErr == nil {
		c.pending = pending
	}
	if err != nil {
		status = StatusError
		c.lastErr = err.Error()
	} else if status == "" {
		status = StatusIdle
		if c.pending > 0 {
			status = StatusError
		}
	}
	c.status = status
	report.Pending = c.pending
	report.Status = status
	c.mu.Unlock()

	c.metrics.setPending(report.Pending)
	c.metrics.observePass(status, time.Since(start).Seconds(), report)

	if err != nil {
		c.logger.Error("sync pass failed", "error", err)
	} else {
		c.logger.Debug("sync pass complete",
			"status", string(status),
			"pending", report.Pending,
			"pushed", report.Total().Pushed,
			"failed", report.Total().Failed,
		)
	}
	return report, err
}

func (c *Coordinator) refreshPending(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Error("pending count failed", "error", err)
	}
}

// scheduleRetry arms the single delayed retry. A retry that is already
// armed is left alone.
func (c *Coordinator) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retryTimer != nil || c.closed {
		return
	}
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		c.logger.Warn("sync retry budget exhausted; waiting for next trigger")
		return
	}

	c.logger.Info("sync retry scheduled", "delay", delay)
	c.metrics.retryScheduled()
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retryTimer = nil
		c.mu.Unlock()
		c.NotifyDirty()
	})
}

// resetRetry cancels an armed retry once the remote is reachable again.
func (c *Coordinator) resetRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoff.Reset()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// beginLocked marks a pass as in flight.
func (c *Coordinator) beginLocked() {
	c.syncing = true
	c.status = StatusSyncing
	c.idle = make(chan struct{})
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		Status:       c.status,
		PendingCount: c.pending,
		LastSyncAt:   c.lastSyncAt,
		LastError:    c.lastErr,
		RetryPending: c.retryTimer != nil,
		Suspended:    c.suspended > 0,
	}
}

func (c *Coordinator) emit(s Snapshot) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}
