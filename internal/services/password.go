package services

import (
	"errors"
	"fmt"
	"sync"

	"servicehub/internal/models"

	"github.com/labstack/gommon/random"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher wraps bcrypt with a configured cost.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A malformed hash is an error;
// a mismatch is not.
func (h *PasswordHasher) Verify(hash, plain string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}

// ApplyPending hashes the user's staged password, if any. Users without a
// staged password keep their stored hash untouched.
func (h *PasswordHasher) ApplyPending(user *models.User) error {
	plain, ok := user.PendingPassword()
	if !ok {
		return nil
	}
	hash, err := h.Hash(plain)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.ClearPendingPassword()
	return nil
}

// CompareDummy runs one bcrypt comparison against a throwaway hash of the
// configured cost. Login calls it when the email is unknown.
func (h *PasswordHasher) CompareDummy(plain string) {
	h.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(random.String(32)), h.cost)
		if err == nil {
			h.dummy = hash
		}
	})
	if h.dummy != nil {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
	}
}
