package auth

import (
	"github.com/prn-tf/helpdesk/internal/domain"
)

// Authorization header keywords.
const (
	AuthorizationHeader = "Authorization"
	KeywordToken        = "Token"
	KeywordBearer       = "Bearer"
)

// AuthType represents the type of authentication used for a request.
type AuthType int

const (
	// AuthTypeAnonymous indicates no authentication was presented.
	AuthTypeAnonymous AuthType = iota

	// AuthTypeToken indicates an opaque bearer token in the Authorization header.
	AuthTypeToken
)

// String returns the string representation of the auth type.
func (at AuthType) String() string {
	switch at {
	case AuthTypeAnonymous:
		return "Anonymous"
	case AuthTypeToken:
		return "Token"
	default:
		return "Unknown"
	}
}

// =============================================================================
// Context Types
// =============================================================================

// AuthContext contains authentication information attached to a request.
// This is set by the auth middleware after successful authentication.
type AuthContext struct {
	// User is the authenticated principal, freshly read from the store.
	User *domain.User

	// AuthType is the type of authentication used.
	AuthType AuthType
}

// UserID returns the authenticated user's ID.
func (c *AuthContext) UserID() int64 {
	return c.User.ID
}

// authContextKey is the context key for AuthContext.
type authContextKey struct{}

// AuthContextKey is the key used to store AuthContext in request context.
var AuthContextKey = authContextKey{}
