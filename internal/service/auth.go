// Package service — user-facing orchestration over the sync core.
//
// AuthService is the only component permitted to mutate the session
// store's credential. It sits between whatever UI the host application
// has and the lower layers:
//
//	login form → AuthService → api.Client (exchange)
//	                         → session.Store (credential, async resolution)
//	                         → syncer.Coordinator (drain kick)
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alessandrolsdev/ledgersync/internal/session"
)

// Authenticator performs the credential exchange. Implemented by
// api.Client.
type Authenticator interface {
	Login(ctx context.Context, username, secret string) (string, error)
}

// DrainKicker lets the controller nudge the coordinator without
// depending on the whole syncer package surface.
type DrainKicker interface {
	AttemptDrain(ctx context.Context)
}

// AuthService mediates login and logout.
type AuthService struct {
	client  Authenticator
	session *session.Store
	syncer  DrainKicker
	logger  *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(client Authenticator, sess *session.Store, syncer DrainKicker, logger *slog.Logger) *AuthService {
	return &AuthService{
		client:  client,
		session: sess,
		syncer:  syncer,
		logger:  logger,
	}
}

// Login performs the authentication exchange and stores the resulting
// credential. Identity resolution and any queued-write drain happen
// asynchronously as consequences of the session store's own transition;
// this method only waits for the token.
//
// On failure — wrong credentials or network error — the session is left
// exactly as it was: there is no partially-logged-in state.
func (s *AuthService) Login(ctx context.Context, identifier, secret string) error {
	token, err := s.client.Login(ctx, identifier, secret)
	if err != nil {
		return fmt.Errorf("service/auth: login for %q: %w", identifier, err)
	}

	if err := s.session.SetCredential(ctx, token); err != nil {
		return fmt.Errorf("service/auth: storing credential: %w", err)
	}

	s.logger.Info("login succeeded", slog.String("identifier", identifier))

	// Foreground-login kick: flush queued work without waiting for a
	// connectivity event. Coalesces with the Ready-transition trigger
	// if resolution finishes first.
	s.syncer.AttemptDrain(ctx)
	return nil
}

// Logout clears the credential. The pending-write queue is deliberately
// untouched: a queued write belongs to the device, not to the session,
// and replays when its owner logs back in. Sync stays suspended until the
// next login.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.session.Clear(ctx); err != nil {
		return fmt.Errorf("service/auth: clearing session: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}
