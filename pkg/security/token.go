package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const (
	// Verification and reset tokens, 64 hex chars
	OneTimeTokenSize = 32
	// Refresh tokens, 128 hex chars
	RefreshTokenSize = 64
)

// GenerateToken returns n random bytes hex encoded
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)

	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// HashToken returns the sha256 hex digest under which a token is stored
func HashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
