// Package sha256 fingerprints stored datasets.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

// Hasher digests the canonical JSON form of a dataset.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Dataset returns the hex digest of dataset.Marshal(d), i.e. of the exact
// bytes every store backend writes.
func (h *Hasher) Dataset(d dataset.Dataset) (string, error) {
	data, err := dataset.Marshal(d)
	if err != nil {
		return "", err
	}
	return h.Bytes(data), nil
}

// Bytes returns the hex digest of data.
func (*Hasher) Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
