package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/helpdesk/internal/auth"
	"github.com/prn-tf/helpdesk/internal/cache/memory"
	"github.com/prn-tf/helpdesk/internal/metrics"
	"github.com/prn-tf/helpdesk/internal/pkg/crypto"
	"github.com/prn-tf/helpdesk/internal/repository/sqlite"
	"github.com/prn-tf/helpdesk/internal/service"
)

type testServer struct {
	handler http.Handler
	db      *sqlite.DB
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "helpdesk.db")), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	cache := memory.NewCache(time.Minute)
	t.Cleanup(cache.Stop)

	users := sqlite.NewUserRepository(db)
	tokens := sqlite.NewTokenRepository(db)
	hasher := crypto.NewBcryptHasher(bcrypt.MinCost)
	m := metrics.New()

	userService := service.NewUserService(users, hasher, service.UserServiceConfig{
		Cache:           cache,
		Metrics:         m,
		DefaultIsActive: true,
	}, logger)
	authService := service.NewAuthService(users, tokens, hasher, service.AuthServiceConfig{
		Cache:    cache,
		CacheTTL: time.Minute,
		Metrics:  m,
	}, logger)

	router := NewRouter(RouterConfig{
		UserHandler:    NewUserHandler(userService, 1<<20, logger),
		AuthHandler:    NewAuthHandler(authService, 1<<20, logger),
		AuthMiddleware: CreateAuthMiddleware(authService, auth.DefaultConfig()),
		Health:         db,
		Metrics:        m,
		Logger:         logger,
	})
	return &testServer{handler: router.Handler(), db: db, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createUser(t *testing.T, username, password string) map[string]any {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users/", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)
}

func (s *testServer) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/login/", map[string]string{"username": username, "password": password})
}

// =============================================================================
// Users
// =============================================================================

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users/", map[string]any{
		"username":   "alice",
		"password":   "s3cr3t",
		"email":      "alice@example.com",
		"first_name": "Alice",
		"is_staff":   true,
		"id":         999,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "Alice", body["first_name"])
	assert.Equal(t, "", body["last_name"])
	assert.Equal(t, false, body["is_staff"], "read-only field is ignored")
	assert.Equal(t, true, body["is_active"])
	assert.NotEqual(t, float64(999), body["id"])
	assert.Nil(t, body["last_login"])
	assert.NotEmpty(t, body["date_joined"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, rec.Body.String(), "s3cr3t")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestCreateUser_Validation(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "alice", "pw")

	tests := []struct {
		name string
		body any
		want map[string][]string
	}{
		{
			name: "missing fields",
			body: map[string]string{},
			want: map[string][]string{
				"username": {"This field is required."},
				"password": {"This field is required."},
			},
		},
		{
			name: "duplicate username",
			body: map[string]string{"username": "alice", "password": "pw"},
			want: map[string][]string{"username": {"A user with that username already exists."}},
		},
		{
			name: "bad email",
			body: map[string]string{"username": "bob", "password": "pw", "email": "bob"},
			want: map[string][]string{"email": {"Enter a valid email address."}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/users/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode[map[string][]string](t, rec))
		})
	}
}

func TestCreateUser_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/users/", `{"username": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, rec)["detail"], "JSON parse error"))
}

func TestListUsers(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"first", "second", "third"} {
		s.createUser(t, name, "pw")
	}

	for _, path := range []string{"/api/users/", "/api/users"} {
		rec := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))

		users := decode[[]map[string]any](t, rec)
		require.Len(t, users, 3)
		assert.Equal(t, "third", users[0]["username"])
		assert.Equal(t, "first", users[2]["username"])
		for _, u := range users {
			assert.NotContains(t, u, "password")
		}
	}

	rec := s.do(t, http.MethodGet, "/api/users/?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]map[string]any](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, "second", page[0]["username"])

	rec = s.do(t, http.MethodGet, "/api/users/?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string][]string{"limit": {"A valid integer is required."}}, decode[map[string][]string](t, rec))
}

func TestListUsers_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/users/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get("X-Total-Count"))
}

func TestRetrieveUser(t *testing.T) {
	s := newTestServer(t)
	created := s.createUser(t, "alice", "pw")
	id := int(created["id"].(float64))

	rec := s.do(t, http.MethodGet, "/api/users/"+itoa(id)+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, rec)["username"])

	for _, path := range []string{"/api/users/9999/", "/api/users/abc/"} {
		rec = s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"detail":"Not found."}`, rec.Body.String())
	}
}

func TestUpdateUser(t *testing.T) {
	s := newTestServer(t)
	created := s.createUser(t, "alice", "s3cr3t")
	path := "/api/users/" + itoa(int(created["id"].(float64))) + "/"

	rec := s.do(t, http.MethodPatch, path, map[string]any{
		"first_name": "Alice",
		"is_active":  false,
		"is_staff":   true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Alice", body["first_name"])
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, false, body["is_staff"])

	rec = s.do(t, http.MethodPut, path, map[string]any{"first_name": "A"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, map[string]any{"username": "alice", "password": "newpass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "newpass")

	rec = s.do(t, http.MethodPatch, "/api/users/9999/", map[string]any{"first_name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t)
	created := s.createUser(t, "alice", "pw")
	path := "/api/users/" + itoa(int(created["id"].(float64))) + "/"

	login := decode[map[string]any](t, s.login(t, "alice", "pw"))
	token := login["token"].(string)

	rec := s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/me/", nil, "Authorization", "Token "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Login
// =============================================================================

func TestLogin_Scenario(t *testing.T) {
	s := newTestServer(t)
	created := s.createUser(t, "alice", "s3cr3t")
	id := int(created["id"].(float64))

	rec := s.login(t, "alice", "s3cr3t")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[map[string]any](t, rec)
	token := first["token"].(string)
	assert.Len(t, token, 40)
	assert.Equal(t, float64(id), first["user_id"])
	assert.Equal(t, "alice", first["username"])
	assert.Equal(t, "", first["email"])
	assert.Equal(t, false, first["is_staff"])
	assert.Equal(t, false, first["is_superuser"])

	rec = s.login(t, "alice", "s3cr3t")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, token, decode[map[string]any](t, rec)["token"])

	wrong := s.login(t, "alice", "wrong")
	unknown := s.login(t, "nobody", "s3cr3t")
	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, `{"non_field_errors":["Unable to log in with provided credentials."]}`, wrong.Body.String())
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	// Change the password: old fails, new returns the same token.
	rec = s.do(t, http.MethodPatch, "/api/users/"+itoa(id)+"/", map[string]string{"password": "newpass"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest, s.login(t, "alice", "s3cr3t").Code)
	rec = s.login(t, "alice", "newpass")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, token, decode[map[string]any](t, rec)["token"])
}

func TestLogin_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/login/", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string][]string{"password": {"This field is required."}}, decode[map[string][]string](t, rec))

	rec = s.do(t, http.MethodGet, "/api/login/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "alice", "pw")
	token := decode[map[string]any](t, s.login(t, "alice", "pw"))["token"].(string)

	for _, header := range []string{"Token " + token, "Bearer " + token} {
		rec := s.do(t, http.MethodGet, "/api/me/", nil, "Authorization", header)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "alice", decode[map[string]any](t, rec)["username"])
	}

	rec := s.do(t, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/me/", nil, "Authorization", "Token "+strings.Repeat("0", 40))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid token."}`, rec.Body.String())
}

// =============================================================================
// Infrastructure
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	require.NoError(t, s.db.Close())
	rec = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingChecker struct{}

func (failingChecker) Ping(ctx context.Context) error { return errors.New("down") }

func TestHealth_Checker(t *testing.T) {
	rt := NewRouter(RouterConfig{Health: failingChecker{}, Logger: zerolog.Nop()})
	rec := httptest.NewRecorder()
	rt.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	_, err := ulid.ParseStrict(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	supplied := ulid.Make().String()
	rec = s.do(t, http.MethodGet, "/health", nil, RequestIDHeader, supplied)
	assert.Equal(t, supplied, rec.Header().Get(RequestIDHeader))

	rec = s.do(t, http.MethodGet, "/health", nil, RequestIDHeader, "not-a-ulid")
	assert.NotEqual(t, "not-a-ulid", rec.Header().Get(RequestIDHeader))
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/departments/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not found."}`, rec.Body.String())
}

func TestMetricsByRoute(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "alice", "pw")
	s.do(t, http.MethodGet, "/api/users/", nil)

	count, err := testutil.GatherAndCount(s.metrics.Registry(), "helpdesk_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `helpdesk_http_requests_total{code="201",method="POST"`)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
