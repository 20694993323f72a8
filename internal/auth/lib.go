package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt strings look like "$2a$10$" + 22 salt chars + 31 hash chars.
const bcryptSaltLen = 29

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Hash returns the bcrypt hash of password and the salt embedded in it.
func (h *PasswordHasher) Hash(password string) (hash, salt string, err error) {
	const op = "auth.Hash"

	if len(password) > 72 {
		return "", "", fmt.Errorf("%s: %w", op, ErrPasswordTooLong)
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	hash = string(b)
	return hash, hash[:bcryptSaltLen], nil
}

// Verify reports whether password matches hash. A malformed hash never matches.
func (h *PasswordHasher) Verify(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
