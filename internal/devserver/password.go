package devserver

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for seeded dev accounts.
const defaultCost = 12

// PasswordService provides bcrypt hashing and verification for the dev
// server's seeded accounts. The cost is injectable so tests can use the
// bcrypt minimum instead of paying ~250ms per hash.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom
// (usually minimum) cost. Not for production use.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes a plaintext password. Rejects input over bcrypt's 72-byte
// limit instead of letting it truncate silently.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("devserver: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("devserver: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks a plaintext password against a stored hash. Returns nil
// on match.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("devserver: invalid password")
		}
		return fmt.Errorf("devserver: comparing password hash: %w", err)
	}
	return nil
}
