// Package syncer drains the pending-write queue against the remote
// service: exactly once per entry, strictly in enqueue order, and only
// when it is safe to do so.
//
// Order matters because the service recomputes aggregate state
// incrementally — replaying out of order would produce a different
// aggregate than the one the user built up. So a rejected write halts the
// whole pass rather than being skipped: the failed entry and everything
// behind it stay queued, and the next readiness or connectivity event
// retries from exactly the same point.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alessandrolsdev/ledgersync/internal/connectivity"
	"github.com/alessandrolsdev/ledgersync/internal/model"
	"github.com/alessandrolsdev/ledgersync/internal/outbox"
	"github.com/alessandrolsdev/ledgersync/internal/session"
)

// ReplayClient issues one write to the remote service. Implemented by
// api.Client.
type ReplayClient interface {
	CreateTransaction(ctx context.Context, token string, w model.PendingWrite) error
}

// Coordinator replays the outbox and announces completion via a
// monotonically increasing sync trigger that consuming views use as a
// cache-invalidation signal.
type Coordinator struct {
	session *session.Store
	queue   *outbox.Queue
	client  ReplayClient
	monitor *connectivity.Monitor
	logger  *slog.Logger

	// drain reentrancy: a trigger that arrives while a drain is in
	// flight coalesces into a single follow-up pass. Two concurrent
	// replay passes would double-send a payload, so there is never
	// more than one.
	mu       sync.Mutex
	draining bool
	rerun    bool

	trigger atomic.Uint64

	subMu sync.Mutex
	subs  []func(uint64)
}

// New creates a Coordinator. Call Watch to wire it to the session and
// connectivity events it drains on; tests drive AttemptDrain directly.
func New(sess *session.Store, queue *outbox.Queue, client ReplayClient, monitor *connectivity.Monitor, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		session: sess,
		queue:   queue,
		client:  client,
		monitor: monitor,
		logger:  logger,
	}
}

// Watch subscribes the coordinator to its drain triggers: connectivity
// coming back online, and the session turning Ready while online. The
// third trigger — immediately after a foreground login — is the auth
// controller's explicit AttemptDrain call.
func (c *Coordinator) Watch() {
	c.monitor.Subscribe(func(online bool) {
		if online {
			c.AttemptDrain(context.Background())
		}
	})
	c.session.Subscribe(func(r session.Readiness) {
		if r == session.Ready && c.monitor.Online() {
			c.AttemptDrain(context.Background())
		}
	})
}

// SyncTrigger returns the current trigger value. It increments once per
// drain pass that replayed at least one entry.
func (c *Coordinator) SyncTrigger() uint64 {
	return c.trigger.Load()
}

// OnSyncTrigger registers fn to be called with the new trigger value
// after each successful (fully or partially) drain pass.
func (c *Coordinator) OnSyncTrigger(fn func(uint64)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, fn)
}

// PendingCount reports the queue length for consuming views.
func (c *Coordinator) PendingCount() int {
	return c.queue.Len()
}

// AttemptDrain replays the queue if the session is Ready, the service is
// reachable, and there is anything to replay; otherwise it is a no-op.
//
// If a drain is already in flight the call returns immediately after
// flagging one follow-up pass — the in-flight drain runs again when it
// finishes, picking up whatever was enqueued meanwhile.
func (c *Coordinator) AttemptDrain(ctx context.Context) {
	c.mu.Lock()
	if c.draining {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	for {
		c.drainPass(ctx)

		c.mu.Lock()
		if c.rerun {
			c.rerun = false
			c.mu.Unlock()
			continue
		}
		c.draining = false
		c.mu.Unlock()
		return
	}
}

// drainPass performs one snapshot-replay-ack cycle.
func (c *Coordinator) drainPass(ctx context.Context) {
	if r := c.session.Readiness(); r != session.Ready {
		c.logger.Debug("drain skipped", slog.String("readiness", r.String()))
		return
	}
	if !c.monitor.Online() {
		c.logger.Debug("drain skipped", slog.String("reason", "offline"))
		return
	}
	if c.queue.IsEmpty() {
		return
	}

	snapshot := c.queue.PeekAll()
	token := c.session.Credential()
	ident := c.session.Identity()
	if token == "" || ident == nil {
		// Session changed between the gate check and the snapshot.
		return
	}

	acked := 0
	for _, w := range snapshot {
		// A write enqueued under a different user stays queued until
		// that user logs back in. Halting (rather than skipping)
		// keeps the replay order intact for when they do.
		if w.Owner != "" && w.Owner != ident.Username {
			c.logger.Warn("drain halted on owner mismatch",
				slog.String("writeID", w.ID),
				slog.String("owner", w.Owner),
				slog.String("session", ident.Username),
			)
			break
		}

		if err := c.client.CreateTransaction(ctx, token, w); err != nil {
			c.logger.Warn("drain halted",
				slog.String("writeID", w.ID),
				slog.String("error", err.Error()),
			)
			break
		}
		acked++
	}

	if acked == 0 {
		return
	}

	if err := c.queue.RemoveAcknowledged(ctx, acked); err != nil {
		// The writes reached the service but the local ack failed;
		// the idempotency keys make the inevitable re-send harmless.
		c.logger.Error("removing acknowledged writes",
			slog.Int("acked", acked),
			slog.String("error", err.Error()),
		)
		return
	}

	value := c.trigger.Add(1)
	c.logger.Info("drain completed",
		slog.Int("replayed", acked),
		slog.Int("remaining", c.queue.Len()),
		slog.Uint64("syncTrigger", value),
	)

	c.subMu.Lock()
	subs := append([]func(uint64){}, c.subs...)
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(value)
	}
}
