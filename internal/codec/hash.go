package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of data. The digest always
// covers the bytes as they travel on the wire, after any compression or
// sealing, so corruption is caught before any decode step runs.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of data and compares it to expected.
func Verify(data []byte, expected string) bool {
	return Hash(data) == expected
}
