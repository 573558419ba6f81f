// Package sha256 fingerprints fetched page bodies so unchanged pages can be
// recognised across runs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the lowercase hex SHA-256 digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentDigest fingerprints a page body. Empty bodies have no digest.
func ContentDigest(content string) string {
	if content == "" {
		return ""
	}
	return Hex([]byte(content))
}
