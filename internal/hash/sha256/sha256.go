// Package sha256 computes content fingerprints used to suppress pages whose
// extracted text was already emitted under another URL.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher with lowercase hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. It never fails; the error is part of
// the crawler.Hasher contract.
func (h *Hasher) Hash(data []byte) (string, error) {
	return Fingerprint(data), nil
}

// Fingerprint returns the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
