// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces hex SHA-256 digests. Group key values come from item
// payloads and may contain path separators or other unsafe bytes, so lock
// files and similar artifacts are named by digest instead.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashString hashes a string key and returns a hex digest.
func (h *Hasher) HashString(key string) (string, error) {
	return h.Hash([]byte(key))
}
