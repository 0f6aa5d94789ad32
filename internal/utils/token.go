package utils // package utils holds small crypto helpers shared by the auth code

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RefreshTokenBytes is the entropy of an issued refresh token.
const RefreshTokenBytes = 64

// NewOpaqueToken returns n cryptographically random bytes, hex encoded.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
