// Package checksum fingerprints indexed documents so unchanged cards can
// be skipped on reindex.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fields returns the hex SHA-256 digest of parts joined by NUL bytes.
// Moving text between fields changes the digest.
func Fields(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
