package model

import "time"

// TransactionDraft is the body of a create-transaction request: what the
// user asked to record, independent of whether it has reached the server.
type TransactionDraft struct {
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	CategoryID  int64     `json:"categoryId"`
	OccurredAt  time.Time `json:"occurredAt"`
	Note        string    `json:"note"`
}

// PendingWrite is one queued transaction create, waiting for the remote
// service to acknowledge it.
//
// ID is generated on the client at enqueue time and doubles as the
// idempotency key sent on replay: if a drain times out after the server
// actually committed the write, the retry references the same key and the
// server can discard the duplicate.
//
// Owner records the username that was active when the write was enqueued
// (empty if no identity was resolved at the time). The coordinator refuses
// to replay a write under a different user's session.
//
// A PendingWrite is never mutated after creation; the queue removes
// acknowledged entries, it does not edit them.
type PendingWrite struct {
	ID         string           `json:"id"`
	Owner      string           `json:"owner,omitempty"`
	Draft      TransactionDraft `json:"draft"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
}
