// Package sha256 computes content digests for exported artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashReader streams r through the digest and reports the byte count.
func (h *Hasher) HashReader(r io.Reader) (string, int64, error) {
	digest := sha256.New()
	n, err := io.Copy(digest, r)
	if err != nil {
		return "", n, fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), n, nil
}
