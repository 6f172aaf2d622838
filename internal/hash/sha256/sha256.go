// Package sha256 fingerprints archived vendor pages.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements ram.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of a page body.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
