package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntryKey returns "<prefix>:<first 16 bytes of sha256(requestKey) as hex>".
// Request keys are full URLs; hashing keeps provider keys short and free of
// characters some backends dislike. The request key itself is stored in the
// entry and checked on read, so a collision reads as a miss.
func EntryKey(prefix, requestKey string) string {
	sum := sha256.Sum256([]byte(requestKey))
	return prefix + ":" + hex.EncodeToString(sum[:16])
}
