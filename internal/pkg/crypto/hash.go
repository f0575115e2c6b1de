package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSHA256 computes the hex-encoded SHA-256 hash of a byte slice.
// Used to derive cache keys from token keys and to pre-hash bcrypt input.
func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
