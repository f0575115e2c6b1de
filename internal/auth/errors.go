// Package auth provides bearer token authentication for Helpdesk HTTP requests.
package auth

import (
	"errors"
	"net/http"

	"github.com/prn-tf/helpdesk/internal/service"
)

// Authentication errors.
var (
	// ErrNoCredentials indicates the header named a keyword but carried no key.
	ErrNoCredentials = errors.New("invalid token header: no credentials provided")

	// ErrTokenHasSpaces indicates more than one value followed the keyword.
	ErrTokenHasSpaces = errors.New("invalid token header: token string should not contain spaces")

	// ErrInvalidToken indicates the key does not resolve to an active user.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotAuthenticated indicates a protected route was reached anonymously.
	ErrNotAuthenticated = errors.New("authentication credentials were not provided")
)

// AuthError is an authentication failure rendered as {"detail": Detail}.
type AuthError struct {
	// Detail is the client-facing message.
	Detail string

	// HTTPStatus is the HTTP status code.
	HTTPStatus int
}

func (e *AuthError) Error() string {
	return e.Detail
}

// NewAuthError creates a new AuthError from a middleware or service error.
func NewAuthError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return &AuthError{
			Detail:     "Invalid token header. No credentials provided.",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrTokenHasSpaces):
		return &AuthError{
			Detail:     "Invalid token header. Token string should not contain spaces.",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrNotAuthenticated):
		return &AuthError{
			Detail:     "Authentication credentials were not provided.",
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrInvalidToken), errors.Is(err, service.ErrAuthentication):
		return &AuthError{
			Detail:     "Invalid token.",
			HTTPStatus: http.StatusUnauthorized,
		}

	default:
		return &AuthError{
			Detail:     "Internal server error.",
			HTTPStatus: http.StatusInternalServerError,
		}
	}
}
