// Package checksum computes the content digests used for index change
// detection and HTTP entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for content.
func ETag(content string) string {
	return `"` + Sum([]byte(content)) + `"`
}
