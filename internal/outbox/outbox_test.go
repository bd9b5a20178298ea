package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alessandrolsdev/ledgersync/internal/apperror"
	"github.com/alessandrolsdev/ledgersync/internal/model"
)

// fakeKV is an in-memory KVStore. Because the map outlives any Queue
// built on it, opening a second Queue over the same fakeKV simulates a
// process reload.
type fakeKV struct {
	data map[string][]byte
	// set to a non-nil error to simulate a storage failure
	setErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = append([]byte{}, value...)
	return nil
}

func (f *fakeKV) Remove(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func draft(description string, amount float64) model.TransactionDraft {
	return model.TransactionDraft{
		Description: description,
		Amount:      amount,
		CategoryID:  3,
		OccurredAt:  time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	q, err := Open(context.Background(), newFakeKV(), testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	w, err := q.Enqueue(context.Background(), "alice", draft("Fuel", 120.50))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if w.ID == "" {
		t.Error("Enqueue() did not assign an ID")
	}
	if w.Owner != "alice" {
		t.Errorf("Owner = %q, want %q", w.Owner, "alice")
	}
	if w.EnqueuedAt.IsZero() {
		t.Error("Enqueue() did not stamp EnqueuedAt")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestEnqueueWriteKeepsGivenID(t *testing.T) {
	kv := newFakeKV()
	ctx := context.Background()
	q, err := Open(ctx, kv, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	w := model.PendingWrite{
		ID:         "cv37rs3pp9olc6atsptg",
		Owner:      "alice",
		Draft:      draft("Fuel", 120.50),
		EnqueuedAt: time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC),
	}
	if err := q.EnqueueWrite(ctx, w); err != nil {
		t.Fatalf("EnqueueWrite() error = %v", err)
	}

	got := q.PeekAll()
	if len(got) != 1 || got[0].ID != w.ID {
		t.Fatalf("PeekAll() = %+v, want the write under its original ID %q", got, w.ID)
	}

	// The ID survives persistence too.
	reloaded, err := Open(ctx, kv, testLogger())
	if err != nil {
		t.Fatalf("Open() after reload error = %v", err)
	}
	if reloaded.PeekAll()[0].ID != w.ID {
		t.Errorf("reloaded write ID = %q, want %q", reloaded.PeekAll()[0].ID, w.ID)
	}
}

func TestEnqueueWriteRejectsMissingID(t *testing.T) {
	ctx := context.Background()
	q, _ := Open(ctx, newFakeKV(), testLogger())

	if err := q.EnqueueWrite(ctx, model.PendingWrite{Draft: draft("Fuel", 1)}); err == nil {
		t.Error("EnqueueWrite() with no ID should fail")
	}
	if !q.IsEmpty() {
		t.Error("failed EnqueueWrite() must not change the queue")
	}
}

// TestDurabilityAcrossReload is the queue's core property: any sequence
// of enqueues followed by a simulated reload yields the same sequence
// from PeekAll.
func TestDurabilityAcrossReload(t *testing.T) {
	kv := newFakeKV()
	ctx := context.Background()

	q, err := Open(ctx, kv, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var want []string
	for _, d := range []string{"Fuel", "Groceries", "Rent"} {
		w, err := q.Enqueue(ctx, "alice", draft(d, 10))
		if err != nil {
			t.Fatalf("Enqueue(%q) error = %v", d, err)
		}
		want = append(want, w.ID)
	}

	// Simulated reload: a fresh Queue over the same storage.
	reloaded, err := Open(ctx, kv, testLogger())
	if err != nil {
		t.Fatalf("Open() after reload error = %v", err)
	}

	got := reloaded.PeekAll()
	if len(got) != len(want) {
		t.Fatalf("PeekAll() after reload returned %d writes, want %d", len(got), len(want))
	}
	for i, w := range got {
		if w.ID != want[i] {
			t.Errorf("PeekAll()[%d].ID = %q, want %q", i, w.ID, want[i])
		}
	}
	if got[0].Draft.Description != "Fuel" {
		t.Errorf("payload lost across reload: %+v", got[0].Draft)
	}
}

func TestRemoveAcknowledgedDropsPrefixOnly(t *testing.T) {
	kv := newFakeKV()
	ctx := context.Background()
	q, _ := Open(ctx, kv, testLogger())

	a, _ := q.Enqueue(ctx, "", draft("A", 1))
	b, _ := q.Enqueue(ctx, "", draft("B", 2))
	c, _ := q.Enqueue(ctx, "", draft("C", 3))
	_ = a

	// Drain snapshot sees [A B C]; one entry is acknowledged, then a
	// concurrent enqueue appends D before the ack is recorded.
	snapshot := q.PeekAll()
	if len(snapshot) != 3 {
		t.Fatalf("PeekAll() = %d writes, want 3", len(snapshot))
	}
	d, _ := q.Enqueue(ctx, "", draft("D", 4))

	if err := q.RemoveAcknowledged(ctx, 1); err != nil {
		t.Fatalf("RemoveAcknowledged(1) error = %v", err)
	}

	got := q.PeekAll()
	wantIDs := []string{b.ID, c.ID, d.ID}
	if len(got) != len(wantIDs) {
		t.Fatalf("queue has %d writes after ack, want %d", len(got), len(wantIDs))
	}
	for i, w := range got {
		if w.ID != wantIDs[i] {
			t.Errorf("queue[%d].ID = %q, want %q", i, w.ID, wantIDs[i])
		}
	}

	// Persisted form matches the in-memory form.
	reloaded, err := Open(ctx, kv, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if reloaded.Len() != 3 {
		t.Errorf("persisted queue has %d writes, want 3", reloaded.Len())
	}
}

func TestRemoveAcknowledgedBounds(t *testing.T) {
	ctx := context.Background()
	q, _ := Open(ctx, newFakeKV(), testLogger())
	if _, err := q.Enqueue(ctx, "", draft("A", 1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := q.RemoveAcknowledged(ctx, 2); err == nil {
		t.Error("RemoveAcknowledged(2) on a 1-entry queue should fail")
	}
	if err := q.RemoveAcknowledged(ctx, -1); err == nil {
		t.Error("RemoveAcknowledged(-1) should fail")
	}
	if err := q.RemoveAcknowledged(ctx, 0); err != nil {
		t.Errorf("RemoveAcknowledged(0) error = %v, want nil", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d after no-op removals, want 1", q.Len())
	}
}

// TestEnqueuePersistenceFailure: a storage failure fails the enqueue
// itself, leaves the queue unchanged, and is classified so the caller
// knows to interrupt the user.
func TestEnqueuePersistenceFailure(t *testing.T) {
	kv := newFakeKV()
	ctx := context.Background()
	q, _ := Open(ctx, kv, testLogger())

	if _, err := q.Enqueue(ctx, "alice", draft("Fuel", 120.50)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	kv.setErr = errors.New("quota exceeded")
	_, err := q.Enqueue(ctx, "alice", draft("Groceries", 80))
	if err == nil {
		t.Fatal("Enqueue() should fail when persistence fails")
	}
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Errorf("Enqueue() error = %v, want ErrPersistence in the chain", err)
	}

	// In-memory state unchanged: the failed payload was not silently kept.
	if q.Len() != 1 {
		t.Errorf("Len() = %d after failed enqueue, want 1", q.Len())
	}

	// And storage still holds only the first write.
	kv.setErr = nil
	reloaded, _ := Open(ctx, kv, testLogger())
	if reloaded.Len() != 1 {
		t.Errorf("persisted queue has %d writes, want 1", reloaded.Len())
	}
}

func TestRemoveAcknowledgedPersistenceFailureKeepsQueue(t *testing.T) {
	kv := newFakeKV()
	ctx := context.Background()
	q, _ := Open(ctx, kv, testLogger())

	q.Enqueue(ctx, "", draft("A", 1))
	q.Enqueue(ctx, "", draft("B", 2))

	kv.setErr = errors.New("disk full")
	if err := q.RemoveAcknowledged(ctx, 1); err == nil {
		t.Fatal("RemoveAcknowledged() should fail when persistence fails")
	}

	if q.Len() != 2 {
		t.Errorf("Len() = %d after failed removal, want 2 (unchanged)", q.Len())
	}
}

func TestPeekAllReturnsCopy(t *testing.T) {
	ctx := context.Background()
	q, _ := Open(ctx, newFakeKV(), testLogger())
	q.Enqueue(ctx, "", draft("A", 1))

	snap := q.PeekAll()
	snap[0].Draft.Description = "tampered"

	if q.PeekAll()[0].Draft.Description != "A" {
		t.Error("PeekAll() exposed internal state to mutation")
	}
}

func TestIsEmpty(t *testing.T) {
	ctx := context.Background()
	q, _ := Open(ctx, newFakeKV(), testLogger())

	if !q.IsEmpty() {
		t.Error("new queue should be empty")
	}
	q.Enqueue(ctx, "", draft("A", 1))
	if q.IsEmpty() {
		t.Error("queue with one write should not be empty")
	}
	if err := q.RemoveAcknowledged(ctx, 1); err != nil {
		t.Fatalf("RemoveAcknowledged() error = %v", err)
	}
	if !q.IsEmpty() {
		t.Error("fully drained queue should be empty")
	}
}
