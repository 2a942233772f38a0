package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sequentech/message-otp/internal/domain"
)

// PasswordHasher hashes and checks account passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is out of range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *PasswordHasher) Hash(password domain.SecretString) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password.Expose()), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

// Matches reports whether password matches hash. A malformed hash is an
// error; a wrong password is (false, nil).
func (h *PasswordHasher) Matches(hash string, password domain.SecretString) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password.Expose()))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}
