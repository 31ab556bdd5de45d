// Package connectivity reports whether the remote store is reachable.
package connectivity

import (
	"context"
	"sync"
)

// Monitor publishes connectivity transitions.
//
// Watch returns a channel that first receives the current state and then
// every change. The channel is closed when ctx is done.
type Monitor interface {
	Watch(ctx context.Context) <-chan bool
}

// Manual is a Monitor driven by explicit Set calls. Used by tests, the
// scenario harness and one-shot CLI commands.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   map[chan bool]struct{}
}

// NewManual creates a Manual monitor with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: make(map[chan bool]struct{})}
}

// Online reports the current state.
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set changes the state and notifies watchers. Setting the current state
// again is a no-op.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	for ch := range m.subs {
		publish(ch, online)
	}
}

// Watch implements Monitor.
func (m *Manual) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	ch <- m.online
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// publish replaces any unread value so a slow watcher only ever sees the
// latest state.
func publish(ch chan bool, online bool) {
	select {
	case <-ch:
	default:
	}
	ch <- online
}
