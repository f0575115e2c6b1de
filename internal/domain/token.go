package domain

import "time"

// TokenKeyBytes is the number of random bytes in a token key (hex-encoded to 40 chars).
const TokenKeyBytes = 20

// Token is an opaque bearer credential bound to exactly one user.
// A user has at most one token; it is reused on every login.
type Token struct {
	// Key is the opaque value presented by clients.
	Key string

	// UserID references the owning user. The token does not own the user.
	UserID int64

	// CreatedAt is when the token was first issued.
	CreatedAt time.Time
}

// NewToken creates a token for the given user.
func NewToken(key string, userID int64) *Token {
	return &Token{
		Key:       key,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}
