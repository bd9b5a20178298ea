// Package apperror defines the error taxonomy of the sync core.
//
// Callers branch on the sentinel errors with errors.Is; the AppError
// wrapper carries a human-readable message alongside. The classes map to
// distinct recovery policies:
//
//   - ErrInvalidCredentials — login rejected; surface to the user.
//   - ErrSessionInvalid     — identity fetch rejected; demote silently to
//     Unauthenticated ("please log in again"), never a hard error.
//   - ErrRejected           — remote service refused a replayed write; the
//     drain halts and retries from the same entry later.
//   - ErrPersistence        — local storage failed; the one class that must
//     interrupt the user, since silent loss of an offline write is the one
//     failure this module exists to prevent.
//   - ErrUnsupportedOffline — the operation cannot be queued (only creates
//     are); the caller must wait for connectivity.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrRejected           = errors.New("write rejected")
	ErrPersistence        = errors.New("persistence failure")
	ErrUnsupportedOffline = errors.New("unsupported while offline")
)

type AppError struct {
	Err     error  // sentinel class
	Message string // Human-readable error message
	Key     string // Optional: storage key or write ID involved
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func InvalidCredentials(identifier string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: fmt.Sprintf("authentication rejected for %q", identifier),
	}
}

func SessionInvalid(reason string) *AppError {
	return &AppError{
		Err:     ErrSessionInvalid,
		Message: reason,
	}
}

func Rejected(writeID string, status int) *AppError {
	return &AppError{
		Err:     ErrRejected,
		Message: fmt.Sprintf("write %s rejected with status %d", writeID, status),
		Key:     writeID,
	}
}

// Persistence wraps a storage failure for the given key. The underlying
// error stays reachable through errors.Is/As via the chained wrap.
func Persistence(key string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrPersistence, err),
		Message: fmt.Sprintf("storing %q failed: %v", key, err),
		Key:     key,
	}
}

func UnsupportedOffline(operation string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedOffline,
		Message: fmt.Sprintf("%s is not supported while offline; only creates are queued", operation),
	}
}
