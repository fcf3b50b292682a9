package urlcanon

import "crypto/sha256"

// DigestSize is the full hash width; PrefixSize is the default lookup
// granularity extracted from it.
const (
	DigestSize = sha256.Size
	PrefixSize = 4
)

// Digest computes the full SHA-256 digest of a candidate expression.
func Digest(pattern string) []byte {
	sum := sha256.Sum256([]byte(pattern))
	return sum[:]
}

// Prefix extracts the default 4-byte lookup prefix from a full digest.
func Prefix(digest []byte) []byte {
	return digest[:PrefixSize]
}
