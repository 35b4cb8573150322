package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the first 12 hex characters of the SHA-256 checksum
// of the provided data. Used to identify stored secrets without exposing them.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}
