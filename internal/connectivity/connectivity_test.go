package connectivity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitorNotifiesOnTransitionOnly(t *testing.T) {
	m := NewMonitor(false)

	var got []bool
	m.Subscribe(func(online bool) { got = append(got, online) })

	m.Set(false) // no transition
	m.Set(true)
	m.Set(true) // no transition
	m.Set(false)

	want := []bool{true, false}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if m.Online() {
		t.Error("Online() = true, want false")
	}
}

func TestMonitorInitialState(t *testing.T) {
	if !NewMonitor(true).Online() {
		t.Error("NewMonitor(true).Online() = false")
	}
	if NewMonitor(false).Online() {
		t.Error("NewMonitor(false).Online() = true")
	}
}

// A subscriber that reads the monitor back must not deadlock; callbacks
// run outside the lock.
func TestMonitorCallbackMayReadBack(t *testing.T) {
	m := NewMonitor(false)

	done := make(chan bool, 1)
	m.Subscribe(func(online bool) { done <- m.Online() })

	m.Set(true)
	select {
	case v := <-done:
		if !v {
			t.Error("Online() inside callback = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("callback deadlocked reading the monitor")
	}
}

// fakeChecker scripts probe outcomes in sequence, repeating the last one.
type fakeChecker struct {
	mu       sync.Mutex
	outcomes []error
	calls    int
}

func (f *fakeChecker) ProbeHealth(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	return f.outcomes[i]
}

func TestProberFlipsMonitor(t *testing.T) {
	m := NewMonitor(false)
	checker := &fakeChecker{outcomes: []error{
		errors.New("unreachable"),
		nil, // recovery
	}}

	transitions := make(chan bool, 4)
	m.Subscribe(func(online bool) { transitions <- online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewProber(m, checker, 5*time.Millisecond, testLogger())
	go p.Run(ctx)

	select {
	case online := <-transitions:
		if !online {
			t.Fatalf("first transition = offline, want online")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prober never reported the service healthy")
	}

	if !m.Online() {
		t.Error("Online() = false after a healthy probe")
	}
}

func TestProberStopsOnCancel(t *testing.T) {
	m := NewMonitor(true)
	checker := &fakeChecker{outcomes: []error{nil}}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewProber(m, checker, time.Millisecond, testLogger())

	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
