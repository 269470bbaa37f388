package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the lowercase hex SHA-256 digest of the exact UTF-8 bytes of content
func Compute(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether hash is the fingerprint of content
func Matches(content string, hash string) bool {
	return Compute(content) == hash
}
