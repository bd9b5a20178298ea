// Package session holds the single source of truth for "who is logged in
// and is it safe to call the network on their behalf".
//
// The store walks a small state machine:
//
//	Initializing → Unauthenticated            (no stored credential)
//	Initializing → Resolving → Ready          (stored credential, fetch ok)
//	Initializing → Resolving → Unauthenticated (fetch rejected)
//	Ready → Unauthenticated                   (logout)
//	Unauthenticated → Resolving → …           (login)
//
// Ready and Unauthenticated are the only actionable states. Consumers must
// treat Initializing and Resolving as "not yet known", never as "no
// session" — otherwise a view or the coordinator acts on a session that
// merely hasn't finished resolving.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alessandrolsdev/ledgersync/internal/apperror"
	"github.com/alessandrolsdev/ledgersync/internal/model"
	"github.com/alessandrolsdev/ledgersync/internal/repository"
)

// Readiness describes whether the session has finished initial resolution
// and is actionable.
type Readiness int

const (
	Initializing Readiness = iota
	Resolving
	Ready
	Unauthenticated
)

func (r Readiness) String() string {
	switch r {
	case Initializing:
		return "initializing"
	case Resolving:
		return "resolving"
	case Ready:
		return "ready"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("readiness(%d)", int(r))
	}
}

// IdentityResolver is the single network read that turns a credential into
// a profile record. Implemented by api.Client.
type IdentityResolver interface {
	FetchIdentity(ctx context.Context, token string) (*model.Identity, error)
}

// credentialKey is where the bearer token is persisted. It must never
// collide with the outbox key, and both must survive a process restart.
const credentialKey = "session/credential"

// Store owns the credential, the resolved identity, and the readiness
// state. It is safe for concurrent use.
//
// Identity resolution is asynchronous: SetCredential returns as soon as
// the credential is persisted, and a background fetch moves the store to
// Ready or Unauthenticated. Each resolution captures the generation
// counter at launch; a resolution that finishes after a newer
// SetCredential or Clear simply discards its result, so a slow fetch for
// an old credential can never clobber a newer session.
type Store struct {
	kv       repository.KVStore
	resolver IdentityResolver
	logger   *slog.Logger

	mu         sync.Mutex
	credential string
	identity   *model.Identity
	readiness  Readiness
	generation uint64
	subs       []func(Readiness)
}

// NewStore creates a Store in the Initializing state. Call Restore to
// adopt any persisted credential before anything else reads the store.
func NewStore(kv repository.KVStore, resolver IdentityResolver, logger *slog.Logger) *Store {
	return &Store{
		kv:        kv,
		resolver:  resolver,
		logger:    logger,
		readiness: Initializing,
	}
}

// Restore loads the persisted credential, if any. With no stored
// credential the store settles in Unauthenticated; with one it enters
// Resolving and kicks off an identity fetch, exactly as a fresh login
// would.
func (s *Store) Restore(ctx context.Context) error {
	value, found, err := s.kv.Get(ctx, credentialKey)
	if err != nil {
		return fmt.Errorf("session: restoring credential: %w", err)
	}

	if !found || len(value) == 0 {
		s.transition(func() {
			s.credential = ""
			s.identity = nil
			s.readiness = Unauthenticated
		})
		return nil
	}

	token := string(value)
	var gen uint64
	s.transition(func() {
		s.credential = token
		s.identity = nil
		s.readiness = Resolving
		s.generation++
		gen = s.generation
	})

	go s.resolve(token, gen)
	return nil
}

// SetCredential stores a new credential and begins resolving its
// identity. The credential is persisted before any state changes; a
// storage failure leaves the session exactly as it was.
//
// The persist happens inside the store's critical section. All writes to
// the credential key are serialized under s.mu, so a stale resolution's
// cleanup can never land between a newer login's persist and its
// generation bump and delete the fresh credential from storage.
func (s *Store) SetCredential(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session: credential must not be empty, use Clear to log out")
	}

	s.mu.Lock()
	if err := s.kv.Set(ctx, credentialKey, []byte(token)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: %w", apperror.Persistence(credentialKey, err))
	}
	s.credential = token
	s.identity = nil
	s.readiness = Resolving
	s.generation++
	gen := s.generation
	subs := append([]func(Readiness){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Resolving)
	}

	go s.resolve(token, gen)
	return nil
}

// Clear drops the credential and identity and moves the store to
// Unauthenticated. Any in-flight resolution is superseded; its result
// will be discarded when it arrives.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.kv.Remove(ctx, credentialKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: %w", apperror.Persistence(credentialKey, err))
	}
	s.credential = ""
	s.identity = nil
	s.readiness = Unauthenticated
	s.generation++
	subs := append([]func(Readiness){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(Unauthenticated)
	}
	return nil
}

// resolve performs the identity fetch for the credential active at
// generation gen. It runs on its own goroutine with a background context:
// the login call that triggered it has long since returned, and there is
// no explicit cancellation — supersession is detected by comparing
// generations when the result arrives.
func (s *Store) resolve(token string, gen uint64) {
	ident, err := s.resolver.FetchIdentity(context.Background(), token)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale identity resolution",
			slog.Uint64("generation", gen),
		)
		return
	}

	if err != nil {
		// Any resolution failure means the session is invalid, not
		// transient: clear everything and demote. Retries belong to
		// the transport, not here.
		//
		// The removal runs under s.mu, in the same critical section as
		// the generation check above. Outside it, a SetCredential could
		// persist a new token between the check and the Remove and have
		// it deleted out from under the new session.
		s.credential = ""
		s.identity = nil
		s.readiness = Unauthenticated
		if rmErr := s.kv.Remove(context.Background(), credentialKey); rmErr != nil {
			s.logger.Error("clearing invalidated credential from storage",
				slog.String("error", rmErr.Error()),
			)
		}
		subs := append([]func(Readiness){}, s.subs...)
		s.mu.Unlock()

		s.logger.Info("session invalidated", slog.String("error", err.Error()))
		for _, fn := range subs {
			fn(Unauthenticated)
		}
		return
	}

	s.identity = ident
	s.readiness = Ready
	subs := append([]func(Readiness){}, s.subs...)
	s.mu.Unlock()

	s.logger.Info("session ready", slog.String("username", ident.Username))
	for _, fn := range subs {
		fn(Ready)
	}
}

// transition applies a state mutation and broadcasts the resulting
// readiness to all subscribers, outside the lock.
func (s *Store) transition(mutate func()) {
	s.mu.Lock()
	mutate()
	r := s.readiness
	subs := append([]func(Readiness){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(r)
	}
}

// Subscribe registers fn to be called on every readiness transition.
// Callbacks run synchronously on the goroutine that caused the
// transition and must not block.
func (s *Store) Subscribe(fn func(Readiness)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Readiness returns the current readiness state.
func (s *Store) Readiness() Readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readiness
}

// Identity returns a copy of the resolved identity, or nil if the session
// is not Ready.
func (s *Store) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	ident := *s.identity
	return &ident
}

// Credential returns the current bearer token, or "" when logged out.
// Only the api client should ever see this value.
func (s *Store) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// Snapshot is the read-only view handed to consuming views.
type Snapshot struct {
	Readiness Readiness
	Identity  *model.Identity
}

// Snapshot returns a consistent readiness+identity pair.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Readiness: s.readiness}
	if s.identity != nil {
		ident := *s.identity
		snap.Identity = &ident
	}
	return snap
}
