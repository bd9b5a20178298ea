package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/alessandrolsdev/ledgersync/internal/apperror"
	"github.com/alessandrolsdev/ledgersync/internal/connectivity"
	"github.com/alessandrolsdev/ledgersync/internal/model"
	"github.com/alessandrolsdev/ledgersync/internal/outbox"
	"github.com/alessandrolsdev/ledgersync/internal/session"
)

// WriteClient issues a foreground transaction create. Implemented by
// api.Client; the same call the coordinator uses for replay.
type WriteClient interface {
	CreateTransaction(ctx context.Context, token string, w model.PendingWrite) error
}

// LedgerService handles the create-transaction user action. Creates are
// the only operation that may be queued offline; edits and deletes of
// existing records require connectivity (see RequireConnectivity).
type LedgerService struct {
	client  WriteClient
	session *session.Store
	queue   *outbox.Queue
	monitor *connectivity.Monitor
	logger  *slog.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(client WriteClient, sess *session.Store, queue *outbox.Queue, monitor *connectivity.Monitor, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		client:  client,
		session: sess,
		queue:   queue,
		monitor: monitor,
		logger:  logger,
	}
}

// RecordTransaction records a new transaction, online or not.
//
// With a Ready session and connectivity, the write goes straight to the
// service; a rejection is the user's problem to fix and is returned.
// A transport failure, on the other hand, means we were effectively
// offline all along — the attempted write is enqueued as-is, same ID and
// all, so its idempotency key survives into the replay. Offline or
// mid-resolution, the write is enqueued immediately, stamped with
// whatever identity is currently resolved.
//
// The returned Recorded reports what happened: Pending is true when the
// write sits in the outbox awaiting a drain.
func (s *LedgerService) RecordTransaction(ctx context.Context, draft model.TransactionDraft) (Recorded, error) {
	snap := s.session.Snapshot()
	owner := ""
	if snap.Identity != nil {
		owner = snap.Identity.Username
	}

	if snap.Readiness == session.Ready && s.monitor.Online() {
		w := model.PendingWrite{
			ID:         xid.New().String(),
			Owner:      owner,
			Draft:      draft,
			EnqueuedAt: time.Now().UTC(),
		}
		err := s.client.CreateTransaction(ctx, s.session.Credential(), w)
		if err == nil {
			return Recorded{Write: w}, nil
		}
		if errors.Is(err, apperror.ErrRejected) {
			return Recorded{}, fmt.Errorf("service/ledger: recording transaction: %w", err)
		}
		s.logger.Warn("foreground write failed, queueing",
			slog.String("writeID", w.ID),
			slog.String("error", err.Error()),
		)

		// The write's ID already traveled as the idempotency key on the
		// failed attempt. Queue the same write, not a rebuilt one, so the
		// replay carries the key the server may have committed under.
		if qErr := s.queue.EnqueueWrite(ctx, w); qErr != nil {
			return Recorded{}, fmt.Errorf("service/ledger: queueing transaction: %w", qErr)
		}
		return Recorded{Write: w, Pending: true}, nil
	}

	w, err := s.queue.Enqueue(ctx, owner, draft)
	if err != nil {
		return Recorded{}, fmt.Errorf("service/ledger: queueing transaction: %w", err)
	}
	return Recorded{Write: w, Pending: true}, nil
}

// Recorded describes the outcome of RecordTransaction.
type Recorded struct {
	Write   model.PendingWrite
	Pending bool // true if the write sits in the outbox awaiting a drain
}

// RequireConnectivity gates operations that cannot be queued — updates
// and deletes of existing records. It returns ErrUnsupportedOffline when
// the write would have to wait for a drain.
func (s *LedgerService) RequireConnectivity(operation string) error {
	if s.session.Readiness() == session.Ready && s.monitor.Online() {
		return nil
	}
	return apperror.UnsupportedOffline(operation)
}
