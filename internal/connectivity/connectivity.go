// Package connectivity tracks whether the remote service is reachable.
//
// The Monitor is the boolean online/offline observable the host
// environment feeds; the coordinator only cares about offline→online
// transitions and current-value reads. The Prober is one possible feeder:
// a periodic HTTP health check. A host with a native connectivity signal
// can skip the prober and call Monitor.Set directly.
package connectivity

import "sync"

// Monitor holds the current online/offline state and notifies subscribers
// on transitions. Setting the same value twice is not a transition and
// does not notify.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []func(online bool)
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// Online returns the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a new state and, if it differs from the previous one,
// notifies subscribers. Callbacks run synchronously on the caller's
// goroutine, outside the monitor's lock.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers fn to be called on every transition.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}
