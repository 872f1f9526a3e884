package security

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var tokenShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// HashToken calculates a SHA-256 hash of the provided value. Bearer tokens are
// stored and cached by this digest only.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// LooksLikeToken reports whether value has the header.payload.signature shape
// of a compact JWS with base64url segments.
func LooksLikeToken(value string) bool {
	return tokenShape.MatchString(value)
}
