// Package sharecode generates the six-character share codes that resolve
// to a file, with collision retry against a uniqueness predicate supplied
// by the caller. Room codes for peer-to-peer sessions are not allocated
// here: the host supplies its own room code in the join message.
package sharecode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// alphabet excludes I, O, 1, 0 so every code is unambiguous when read aloud
// or transcribed by hand.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the fixed code length.
const Length = 6

// defaultMaxAttempts bounds the collision-retry loop.
const defaultMaxAttempts = 8

// ErrExhausted is returned when every attempt collided with an existing
// code under the caller-supplied uniqueness predicate.
var ErrExhausted = fmt.Errorf("sharecode: exhausted all attempts without finding a free code")

// Exists is a uniqueness predicate: it reports whether code is already
// taken. The catalog lookups (GetFileByShareCode, GetRoom) satisfy this
// signature directly modulo an adapter at the call site.
type Exists func(code string) (bool, error)

// Generate draws one uniformly random code from the alphabet. Callers that
// don't need collision retry (e.g. tests) can call this directly.
func Generate() (string, error) {
	b := make([]byte, Length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("sharecode: read random bytes: %w", err)
	}
	var sb strings.Builder
	sb.Grow(Length)
	for _, v := range b {
		sb.WriteByte(alphabet[int(v)%len(alphabet)])
	}
	return sb.String(), nil
}

// Allocate draws codes until exists reports one that is free, retrying up
// to maxAttempts times before returning ErrExhausted.
// maxAttempts <= 0 uses the default.
func Allocate(exists Exists, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(code)
		if err != nil {
			return "", fmt.Errorf("sharecode: uniqueness check: %w", err)
		}
		if !taken {
			return code, nil
		}
	}

	return "", ErrExhausted
}

// Normalize upper-cases a caller-supplied code for lookup; storage is always
// canonical uppercase but input may arrive in any case.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
