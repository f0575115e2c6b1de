package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Key generation errors
var (
	// ErrInvalidTokenKey indicates a presented token key is malformed.
	ErrInvalidTokenKey = errors.New("invalid token key")
)

// GenerateTokenKey returns n random bytes hex-encoded (2n characters).
func GenerateTokenKey(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token key length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateTokenKey checks that key looks like a key produced by GenerateTokenKey(n).
// Lookups of malformed keys are skipped entirely.
func ValidateTokenKey(key string, n int) error {
	key = strings.TrimSpace(key)
	if len(key) != n*2 {
		return ErrInvalidTokenKey
	}
	if _, err := hex.DecodeString(key); err != nil {
		return ErrInvalidTokenKey
	}
	return nil
}
