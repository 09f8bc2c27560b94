package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Parameters used by NewArgon. Hashes remember their own parameters, so
// raising these only affects passwords hashed afterwards.
const (
	ArgonMemory      = 64 * 1024
	ArgonIterations  = 3
	ArgonParallelism = 2
	ArgonSaltLength  = 16
	ArgonKeyLength   = 32
)

// ArgonHash is the argon2id Hasher. Encoded hashes use the PHC string
// format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// with salt and key in unpadded standard base64.
type ArgonHash struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func NewArgon() *ArgonHash {
	return &ArgonHash{
		Memory:      ArgonMemory,
		Iterations:  ArgonIterations,
		Parallelism: ArgonParallelism,
		SaltLength:  ArgonSaltLength,
		KeyLength:   ArgonKeyLength,
	}
}

func (a *ArgonHash) Hash(password string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read salt, %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)

	return argonParams{
		memory:      a.Memory,
		iterations:  a.Iterations,
		parallelism: a.Parallelism,
		salt:        salt,
		key:         key,
	}.encode(), nil
}

// Verify recomputes the key with the parameters stored in encoded, not the
// ones a is configured with
func (a *ArgonHash) Verify(password, encoded string) (bool, error) {
	p, err := decodeArgon(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), p.salt, p.iterations, p.memory, p.parallelism, uint32(len(p.key)))

	return subtle.ConstantTimeCompare(p.key, key) == 1, nil
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p argonParams) encode() string {
	b64 := base64.RawStdEncoding

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.iterations, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

// decodeArgon wraps every failure in ErrMalformedHash
func decodeArgon(encoded string) (*argonParams, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	p := &argonParams{}

	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return nil, fmt.Errorf("%w: zero cost parameter", ErrMalformedHash)
	}

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if len(p.key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrMalformedHash)
	}

	return p, nil
}
