package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.UserCreated()
	m.UserCreated()
	m.UserDeleted()
	m.Login(OutcomeSuccess)
	m.Login(OutcomeFailure)
	m.Login(OutcomeFailure)
	m.TokenIssued(true)
	m.TokenResolved("cache")
	m.ObserveHTTP("/api/users/", http.MethodGet, 200, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.usersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.usersDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokensIssued.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenResolves.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/users/", "GET", "200")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UserCreated()
		m.UserDeleted()
		m.Login(OutcomeSuccess)
		m.TokenIssued(false)
		m.TokenResolved("store")
		m.ObserveHTTP("/", "GET", 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.UserCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "helpdesk_users_created_total 1")
}
