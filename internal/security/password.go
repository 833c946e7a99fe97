package security

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Cost is the fixed bcrypt work factor used for every stored secret.
const Cost = bcrypt.DefaultCost

// ErrHashingFailed is returned when a secret cannot be hashed.
var ErrHashingFailed = errors.New("hashing failed")

// hashError matches ErrHashingFailed and unwraps to the bcrypt failure.
type hashError struct {
	cause error
}

func (e *hashError) Error() string { return ErrHashingFailed.Error() + ": " + e.cause.Error() }
func (e *hashError) Unwrap() error { return e.cause }
func (e *hashError) Cause() error { return e.cause }
func (e *hashError) Is(target error) bool { return target == ErrHashingFailed }

// HashPassword hashes the provided secret using bcrypt.
func HashPassword(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), Cost)
	if err != nil {
		return "", &hashError{cause: err}
	}
	return string(hash), nil
}

// VerifyPassword reports whether secret matches the stored hash. Malformed or
// empty hashes never match.
func VerifyPassword(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
