package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

type BcryptHash struct {
	Cost int
}

// NewBcrypt returns a bcrypt hasher. Costs outside bcrypt's accepted range
// are rejected so a typo in the config can't silently weaken hashes.
func NewBcrypt(cost int) (*BcryptHash, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return &BcryptHash{Cost: cost}, nil
}

func (b *BcryptHash) Hash(p string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(p), b.Cost)
	if err != nil {
		return "", err
	}

	return string(h), nil
}

func (b *BcryptHash) Verify(p, e string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(e), []byte(p))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}
