package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when the configured one is zero.
const DefaultBcryptCost = 10

// HashPassword derives a salted bcrypt digest of password. The cost controls
// the work factor; bcrypt keeps hashing deliberately slow, so callers should
// treat this as a CPU-bound operation.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", common.ErrValidation
	}
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares password against a stored bcrypt digest.
// A mismatch is reported as (false, nil); an error is returned only when the
// stored hash itself is malformed, which is a data corruption problem rather
// than a failed login.
func VerifyPassword(password, storedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("malformed password hash: %w", err)
}

// MustDecoyHash returns a bcrypt digest of random bytes at the given cost.
// Login uses it to burn the same amount of work on unknown identifiers as on
// known ones, so the two failure paths are not distinguishable by timing.
// An invalid cost is a programmer error and panics.
func MustDecoyHash(cost int) string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	hash, err := HashPassword(hex.EncodeToString(b), cost)
	if err != nil {
		panic(err)
	}
	return hash
}
