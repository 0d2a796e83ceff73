// Package connectivity tracks whether the device currently has network
// reachability and tells subscribers when that changes.
package connectivity

import (
	"sync"
)

// Transition is a change in reachability.
type Transition int

const (
	WentOffline Transition = iota
	WentOnline
)

func (t Transition) String() string {
	if t == WentOnline {
		return "online"
	}
	return "offline"
}

const subscriberBuffer = 8

// Monitor holds the current reachability flag. Set is the platform signal;
// every real change is fanned out to subscribers exactly once.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan Transition
	nextID int
}

// New returns a Monitor with the given initial state.
func New(initialOnline bool) *Monitor {
	return &Monitor{
		online: initialOnline,
		subs:   make(map[int]chan Transition),
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel of future transitions and a func that
// unsubscribes and closes the channel. A subscriber that falls behind
// misses transitions; it can always read Online for the current state.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Set records the platform's reachability. It emits one transition if the
// value changed and nothing otherwise.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	t := WentOffline
	if online {
		t = WentOnline
	}
	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
			// Drop if subscriber is full
		}
	}
}
