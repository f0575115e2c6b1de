package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/prn-tf/helpdesk/internal/domain"
)

// TokenResolver resolves a bearer token key to its active user.
type TokenResolver interface {
	Resolve(ctx context.Context, key string) (*domain.User, error)
}

// Config contains configuration for the auth middleware.
type Config struct {
	// SkipPaths are paths that skip authentication.
	SkipPaths []string
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// Middleware creates an authentication middleware.
// Requests without token credentials continue anonymously; a presented token
// that does not resolve is rejected with 401.
func Middleware(resolver TokenResolver, config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			switch GetAuthType(r) {
			case AuthTypeAnonymous:
				next.ServeHTTP(w, r)
				return

			case AuthTypeToken:
				authCtx, err := handleToken(r, resolver)
				if err != nil {
					hlog.FromRequest(r).Debug().Err(err).Str("path", r.URL.Path).Msg("token authentication failed")
					writeAuthError(w, err)
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), AuthContextKey, authCtx))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleToken resolves the token in the Authorization header.
func handleToken(r *http.Request, resolver TokenResolver) (*AuthContext, error) {
	key, err := ParseTokenHeader(r.Header.Get(AuthorizationHeader))
	if err != nil {
		return nil, err
	}

	user, err := resolver.Resolve(r.Context(), key)
	if err != nil {
		return nil, err
	}

	return &AuthContext{
		User:     user,
		AuthType: AuthTypeToken,
	}, nil
}

// writeAuthError writes a {"detail": ...} error response.
func writeAuthError(w http.ResponseWriter, err error) {
	authErr := NewAuthError(err)

	w.Header().Set("Content-Type", "application/json")
	if authErr.HTTPStatus == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", KeywordToken)
	}
	w.WriteHeader(authErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": authErr.Detail})
}

// GetAuthContext retrieves the AuthContext from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

// RequireAuth is a helper to get auth context or return error.
func RequireAuth(ctx context.Context) (*AuthContext, error) {
	authCtx := GetAuthContext(ctx)
	if authCtx == nil {
		return nil, ErrNotAuthenticated
	}
	return authCtx, nil
}

// RequireAuthMiddleware rejects anonymous requests with 401.
func RequireAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireAuth(r.Context()); err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
