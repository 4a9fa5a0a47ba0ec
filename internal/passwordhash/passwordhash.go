// Package passwordhash hashes and verifies per-file share passwords. It
// uses Argon2id, a memory-hard KDF, with a per-hash random salt, and a
// constant-time comparison so verification time never leaks how many
// leading characters of a guess matched.
//
// Hashing is intentionally slow; every call must run off the request
// goroutine on a bounded worker pool, see Pool.
package passwordhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32

	// Cost parameters. Chosen for ~50ms on modest hardware: slow enough to
	// matter, fast enough not to dominate a presign/confirm request when run
	// off the Pool.
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// Hash derives an encoded Argon2id hash string ("argon2id$salt$hash", both
// base64 raw-url) from a plaintext password. The salt is fresh random bytes
// on every call, so hashing the same password twice yields different output.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("passwordhash: read salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLen)

	return fmt.Sprintf("argon2id$%s$%s",
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(sum),
	), nil
}

// Verify reports whether password matches the encoded hash. It runs in time
// independent of how much of password is correct: the salt and cost
// parameters are re-derived identically regardless of input, and the final
// comparison uses subtle.ConstantTimeCompare.
func Verify(password, encoded string) bool {
	salt, want, ok := decode(encoded)
	if !ok {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decode(encoded string) (salt, sum []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return nil, nil, false
	}
	salt, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, false
	}
	sum, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, false
	}
	return salt, sum, true
}
