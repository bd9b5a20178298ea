package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates the bearer credentials the dev server
// hands out on login. The sync core treats the token as opaque; JWT is
// just a convenient way for the stand-in to validate without state.
type TokenService struct {
	secret []byte
}

const tokenIssuer = "ledgersync-dev"

// NewTokenService creates a TokenService with the given HMAC secret.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("devserver: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims embeds jwt.RegisteredClaims; the Subject claim carries the
// username.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates a signed token for username, valid for 24 hours —
// long enough that an offline client resuming the next day still drains
// its queue before re-authenticating.
func (s *TokenService) Generate(username string) (string, error) {
	return s.GenerateWithDuration(username, 24*time.Hour)
}

// GenerateWithDuration creates a token with a custom expiry. Used by
// tests to exercise expired-credential handling.
func (s *TokenService) GenerateWithDuration(username string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("devserver: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token, returning the username it was
// issued to. Expired, tampered, or foreign-issuer tokens all fail.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("devserver: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("devserver: token expired")
		}
		return "", fmt.Errorf("devserver: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("devserver: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("devserver: token has no subject")
	}

	return c.Subject, nil
}
