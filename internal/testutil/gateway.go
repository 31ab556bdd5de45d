package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/pacer/internal/domain"
)

// Call records one FakeGateway invocation.
type Call struct {
	Op string
	ID string
}

func (c Call) String() string {
	return c.Op + ":" + c.ID
}

// FakeGateway is an in-memory remote.Gateway with scriptable failures.
//
// Stored records are kept by id so tests can assert last-write-wins.
// Block, when set, holds every upsert until the channel is closed, which
// lets tests keep a sync pass in flight.
type FakeGateway struct {
	mu sync.Mutex

	calls    []Call
	users    map[string]bool
	sessions map[string]domain.Session
	events   map[string]domain.Event
	presets  map[string]domain.Preset

	offline bool
	reject  map[string]bool
	block   chan struct{}
	entered chan struct{}
}

// NewFakeGateway creates an empty, reachable fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		users:    make(map[string]bool),
		sessions: make(map[string]domain.Session),
		events:   make(map[string]domain.Event),
		presets:  make(map[string]domain.Preset),
		reject:   make(map[string]bool),
		entered:  make(chan struct{}, 64),
	}
}

// SetOffline makes every call fail with REMOTE_UNREACHABLE.
func (g *FakeGateway) SetOffline(offline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = offline
}

// Reject makes upserts of the given record id fail with REMOTE_REJECTED.
func (g *FakeGateway) Reject(id string, reject bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if reject {
		g.reject[id] = true
	} else {
		delete(g.reject, id)
	}
}

// Block holds all subsequent calls until the returned release func runs.
func (g *FakeGateway) Block() (release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.block = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.block == ch {
				g.block = nil
			}
			g.mu.Unlock()
			close(ch)
		})
	}
}

// Entered receives a value each time a call starts. Useful to wait until
// a blocked pass has reached the gateway.
func (g *FakeGateway) Entered() <-chan struct{} {
	return g.entered
}

// Calls returns a copy of the call log.
func (g *FakeGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how many calls were made for op ("" counts all).
func (g *FakeGateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if op == "" {
		return len(g.calls)
	}
	n := 0
	for _, c := range g.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log but keeps stored records.
func (g *FakeGateway) ResetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

// Session returns the stored copy of a session.
func (g *FakeGateway) Session(id string) (domain.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	return s, ok
}

// Event returns the stored copy of an event.
func (g *FakeGateway) Event(id string) (domain.Event, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.events[id]
	return e, ok
}

// Preset returns the stored copy of a preset.
func (g *FakeGateway) Preset(id string) (domain.Preset, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.presets[id]
	return p, ok
}

// HasUser reports whether the user was upserted and not deleted.
func (g *FakeGateway) HasUser(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.users[id]
}

// Counts returns the number of stored sessions, events and presets.
func (g *FakeGateway) Counts() (sessions, events, presets int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions), len(g.events), len(g.presets)
}

var errFakeOffline = errors.New("fake gateway offline")

// begin records the call, waits while blocked and reports the scripted failure.
func (g *FakeGateway) begin(ctx context.Context, op, id string) error {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Op: op, ID: id})
	block := g.block
	g.mu.Unlock()

	select {
	case g.entered <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.NewUnreachable(op, ctx.Err())
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return domain.NewUnreachable(op, errFakeOffline)
	}
	if g.reject[id] {
		return domain.NewRejected(op, fmt.Errorf("record %s rejected", id))
	}
	return nil
}

// UpsertUser implements remote.Gateway.
func (g *FakeGateway) UpsertUser(ctx context.Context, userID string) error {
	if err := g.begin(ctx, "upsert_user", userID); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[userID] = true
	return nil
}

// UpsertSession implements remote.Gateway.
func (g *FakeGateway) UpsertSession(ctx context.Context, s domain.Session) (string, error) {
	if err := g.begin(ctx, "upsert_session", s.ID); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s.Dirty = false
	g.sessions[s.ID] = s
	return s.ID, nil
}

// UpsertEvent implements remote.Gateway. Like a database with a foreign
// key, it rejects events whose session was never pushed.
func (g *FakeGateway) UpsertEvent(ctx context.Context, e domain.Event) (string, error) {
	if err := g.begin(ctx, "upsert_event", e.ID); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[e.SessionID]; !ok {
		return "", domain.NewRejected("upsert_event", fmt.Errorf("session %s does not exist", e.SessionID))
	}
	e.Dirty = false
	g.events[e.ID] = e
	return e.ID, nil
}

// UpsertPreset implements remote.Gateway.
func (g *FakeGateway) UpsertPreset(ctx context.Context, p domain.Preset) (string, error) {
	if err := g.begin(ctx, "upsert_preset", p.ID); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p.Dirty = false
	g.presets[p.ID] = p
	return p.ID, nil
}

// DeleteUser implements remote.Gateway.
func (g *FakeGateway) DeleteUser(ctx context.Context, userID string) error {
	if err := g.begin(ctx, "delete_user", userID); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, userID)
	for id, s := range g.sessions {
		if s.UserID != userID {
			continue
		}
		delete(g.sessions, id)
		for eid, e := range g.events {
			if e.SessionID == id {
				delete(g.events, eid)
			}
		}
	}
	for id, p := range g.presets {
		if p.UserID == userID {
			delete(g.presets, id)
		}
	}
	return nil
}
