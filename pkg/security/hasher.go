// Package security hashes passwords and generates the random tokens that
// are mailed to users or handed out as refresh tokens
package security

import (
	"errors"
	"fmt"
)

// ErrMalformedHash is returned by Verify when the stored hash can't be
// decoded. A wrong password is never reported as an error.
var ErrMalformedHash = errors.New("malformed password hash")

// Hasher turns plaintext passwords into one-way encoded hashes and checks
// candidates against them. Verify must compare in constant time and only
// return an error when the stored hash itself is unusable.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// NewHasher picks the hasher named by algo
func NewHasher(algo string, bcryptCost int) (Hasher, error) {
	switch algo {
	case "", "bcrypt":
		return NewBcrypt(bcryptCost)
	case "argon2id":
		return NewArgon(), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algo)
	}
}
