// Package outbox implements the durable pending-write queue.
//
// Every transaction created while offline lands here and survives
// connectivity loss, process restarts, and logouts. The queue is strictly
// FIFO and append-only: entries are removed only after the remote service
// acknowledges them, and never mutated in place.
//
// Durability contract: the in-memory slice and the persisted JSON blob are
// consistent after every successful Enqueue and every successful
// RemoveAcknowledged. Persistence happens before the in-memory state
// changes, so a storage failure leaves both representations untouched and
// is reported synchronously to the caller — the queue never silently
// drops a payload.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/alessandrolsdev/ledgersync/internal/apperror"
	"github.com/alessandrolsdev/ledgersync/internal/model"
	"github.com/alessandrolsdev/ledgersync/internal/repository"
)

// queueKey is where the serialized queue lives. Distinct from the session
// credential key by construction.
const queueKey = "outbox/pending"

// Queue is the durable FIFO of pending writes. Safe for concurrent use:
// an Enqueue may interleave with a drain's RemoveAcknowledged, because
// removal only ever drops a prefix the drain itself acknowledged.
type Queue struct {
	kv     repository.KVStore
	logger *slog.Logger

	mu     sync.Mutex
	writes []model.PendingWrite
}

// Open loads the persisted queue. A missing key means an empty queue; a
// corrupt blob is an error, not silent data loss.
func Open(ctx context.Context, kv repository.KVStore, logger *slog.Logger) (*Queue, error) {
	q := &Queue{kv: kv, logger: logger}

	value, found, err := kv.Get(ctx, queueKey)
	if err != nil {
		return nil, fmt.Errorf("outbox: loading queue: %w", err)
	}
	if found && len(value) > 0 {
		if err := json.Unmarshal(value, &q.writes); err != nil {
			return nil, fmt.Errorf("outbox: decoding persisted queue: %w", err)
		}
	}

	if len(q.writes) > 0 {
		logger.Info("outbox restored", slog.Int("pending", len(q.writes)))
	}
	return q, nil
}

// Enqueue appends a new pending write for draft and persists the queue.
// owner is the username active at enqueue time ("" if none resolved); the
// coordinator will refuse to replay the entry under a different user.
//
// Enqueue never touches the network. A persistence failure is returned
// wrapped in apperror.ErrPersistence and must interrupt the caller's
// workflow: this is the one error the user has to see.
func (q *Queue) Enqueue(ctx context.Context, owner string, draft model.TransactionDraft) (model.PendingWrite, error) {
	w := model.PendingWrite{
		ID:         xid.New().String(),
		Owner:      owner,
		Draft:      draft,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.EnqueueWrite(ctx, w); err != nil {
		return model.PendingWrite{}, err
	}
	return w, nil
}

// EnqueueWrite appends an already-built pending write, keeping its ID.
// A write whose ID has traveled as an idempotency key on a failed send
// must be queued through here: minting a fresh ID would give the retry a
// key the server has never seen, and an ambiguous timeout would book the
// amount twice.
func (q *Queue) EnqueueWrite(ctx context.Context, w model.PendingWrite) error {
	if w.ID == "" {
		return fmt.Errorf("outbox: pending write has no ID")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := append(append([]model.PendingWrite{}, q.writes...), w)
	if err := q.persistLocked(ctx, next); err != nil {
		return err
	}
	q.writes = next

	q.logger.Debug("write enqueued",
		slog.String("writeID", w.ID),
		slog.Int("pending", len(q.writes)),
	)
	return nil
}

// PeekAll returns the full ordered queue without mutating it. The
// returned slice is the drain's snapshot: entries enqueued afterwards are
// not in it, and RemoveAcknowledged counts against it alone.
func (q *Queue) PeekAll() []model.PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingWrite{}, q.writes...)
}

// RemoveAcknowledged drops exactly the first n entries — the prefix a
// drain has had acknowledged by the service. Entries appended after the
// drain's snapshot sit behind that prefix and are always preserved.
func (q *Queue) RemoveAcknowledged(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("outbox: cannot remove %d entries", n)
	}
	if n == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.writes) {
		return fmt.Errorf("outbox: cannot remove %d of %d entries", n, len(q.writes))
	}

	next := append([]model.PendingWrite{}, q.writes[n:]...)
	if err := q.persistLocked(ctx, next); err != nil {
		return err
	}
	q.writes = next

	q.logger.Debug("acknowledged writes removed",
		slog.Int("removed", n),
		slog.Int("pending", len(q.writes)),
	)
	return nil
}

// Len returns the number of pending writes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.writes)
}

// IsEmpty reports whether the queue has no pending writes.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// persistLocked writes the given queue state to storage. Callers hold
// q.mu and only assign q.writes after a nil return.
func (q *Queue) persistLocked(ctx context.Context, writes []model.PendingWrite) error {
	value, err := json.Marshal(writes)
	if err != nil {
		return fmt.Errorf("outbox: encoding queue: %w", err)
	}
	if err := q.kv.Set(ctx, queueKey, value); err != nil {
		return fmt.Errorf("outbox: %w", apperror.Persistence(queueKey, err))
	}
	return nil
}
