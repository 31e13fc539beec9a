package util

import (
	"crypto/sha256"
	"fmt"
)

// StorageKey returns the namespaced spill key for a primary key: a short,
// fixed-length digest so arbitrary caller keys never blow up spill key
// sizes. Hashed keys cannot be pattern-matched, which is why spill
// invalidation works by revision instead of enumeration.
func StorageKey(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", namespace, sum)[:len(namespace)+1+16] // ns + ":" + first 16 hex chars
}
