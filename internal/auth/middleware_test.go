package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/service"
)

const goodKey = "0123456789abcdef0123456789abcdef01234567"

type stubResolver struct {
	users map[string]*domain.User
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, key string) (*domain.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[key]; ok {
		return u, nil
	}
	return nil, service.ErrInvalidToken
}

func newStubResolver() *stubResolver {
	return &stubResolver{users: map[string]*domain.User{
		goodKey: {ID: 7, Username: "alice", IsActive: true},
	}}
}

// whoami echoes the authenticated username, or "anonymous".
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if c := GetAuthContext(r.Context()); c != nil {
		_, _ = w.Write([]byte(c.User.Username))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
})

func TestParseTokenHeader(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Token " + goodKey, goodKey, nil},
		{"Bearer " + goodKey, goodKey, nil},
		{"token " + goodKey, goodKey, nil},
		{"Token", "", ErrNoCredentials},
		{"Token a b", "", ErrTokenHasSpaces},
		{"Basic Zm9vOmJhcg==", "", ErrNoCredentials},
		{"", "", ErrNoCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseTokenHeader(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetAuthType(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, AuthTypeAnonymous, GetAuthType(r))

	r.Header.Set(AuthorizationHeader, "Basic Zm9vOmJhcg==")
	assert.Equal(t, AuthTypeAnonymous, GetAuthType(r))

	r.Header.Set(AuthorizationHeader, "Bearer x")
	assert.Equal(t, AuthTypeToken, GetAuthType(r))
	assert.Equal(t, "Token", AuthTypeToken.String())
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
		wantDetail string
	}{
		{name: "anonymous", wantStatus: http.StatusOK, wantBody: "anonymous"},
		{name: "other scheme passes through", header: "Basic Zm9vOmJhcg==", wantStatus: http.StatusOK, wantBody: "anonymous"},
		{name: "valid token", header: "Token " + goodKey, wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "valid bearer", header: "Bearer " + goodKey, wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "unknown token", header: "Token ffffffffffffffffffffffffffffffffffffffff", wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token."},
		{name: "keyword only", header: "Token", wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token header. No credentials provided."},
		{name: "spaces", header: "Token a b", wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token header. Token string should not contain spaces."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(newStubResolver(), DefaultConfig())(whoami)

			req := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantDetail != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantDetail, body["detail"])
				assert.Equal(t, "Token", rec.Header().Get("WWW-Authenticate"))
				return
			}
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestMiddleware_ResolverFailure(t *testing.T) {
	resolver := &stubResolver{err: errors.New("database down")}
	h := Middleware(resolver, DefaultConfig())(whoami)

	req := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
	req.Header.Set(AuthorizationHeader, "Token "+goodKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal server error."}`, rec.Body.String())
}

func TestMiddleware_SkipPaths(t *testing.T) {
	resolver := newStubResolver()
	h := Middleware(resolver, DefaultConfig())(whoami)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(AuthorizationHeader, "Token garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, resolver.calls)
}

func TestRequireAuthMiddleware(t *testing.T) {
	h := Middleware(newStubResolver(), DefaultConfig())(RequireAuthMiddleware(whoami))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Authentication credentials were not provided."}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
	req.Header.Set(AuthorizationHeader, "Token "+goodKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestRequireAuth(t *testing.T) {
	_, err := RequireAuth(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	ctx := context.WithValue(context.Background(), AuthContextKey, &AuthContext{User: &domain.User{ID: 3}})
	c, err := RequireAuth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.UserID())
}
