// Package utils holds small helpers shared across packages: random
// tokens and retry with exponential backoff.
package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateToken returns n random bytes encoded as unpadded base64url,
// suitable for session identifiers and cookie values.
func GenerateToken(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
