package repository

import "context"

// KVStore is the durable key-value surface everything in the sync core
// persists through: the session credential, the pending-write queue, and
// whatever display preferences the host application keeps.
//
// Implementations must survive a full process restart: a value written by
// Set must be returned by Get after reopening the store. Get reports
// found=false (not an error) for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
