package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// ResultPrefix namespaces analysis-result keys.
const ResultPrefix = "results:"

// ResultKey returns the cache key for a fingerprint.
func ResultKey(fingerprint string) string {
	return ResultPrefix + fingerprint
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
