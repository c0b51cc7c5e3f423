package chunking

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentHash addresses a piece of content for dedup checks and cache
// keys.
func ContentHash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
