// Package storagekey builds and validates the object-store key format used
// by the upload flow: uploads/{ownerId}/{epochMillis}-{name}.
package storagekey

import (
	"fmt"
	"strings"
)

// maxLength caps a storage key's byte length.
const maxLength = 1024

// sanitize keeps [A-Za-z0-9.-] and substitutes '_' for everything else.
func sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Build constructs the storage key for a new upload. epochMillis is the
// caller's wall-clock time in milliseconds, passed in rather than read from
// time.Now so callers keep control of the clock source (tests, determinism).
func Build(ownerID string, epochMillis int64, originalName string) string {
	key := fmt.Sprintf("uploads/%s/%d-%s", ownerID, epochMillis, sanitize(originalName))
	if len(key) > maxLength {
		key = key[:maxLength]
	}
	return key
}

// OwnerPrefix is the directory prefix every key belonging to ownerID must
// start with; Confirm uses it to reject cross-owner binding.
func OwnerPrefix(ownerID string) string {
	return fmt.Sprintf("uploads/%s/", ownerID)
}

// BelongsToOwner reports whether key was minted for ownerID.
func BelongsToOwner(key, ownerID string) bool {
	return strings.HasPrefix(key, OwnerPrefix(ownerID))
}
