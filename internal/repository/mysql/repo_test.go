package mysql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/helpdesk/internal/config"
	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/repository"
)

// newTestDB connects to the database named by HELPDESK_TEST_MYSQL_DSN
// (which must include parseTime=true), migrates and empties it.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("HELPDESK_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("HELPDESK_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()

	db, err := NewDBWithDSN(ctx, dsn, config.DatabaseConfig{MaxOpenConns: 10}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	for _, stmt := range []string{`DELETE FROM tokens`, `DELETE FROM users`} {
		_, err := db.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestMySQL_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	u := domain.NewUser("alice", "alice@example.com", "", "", "hash", true)
	require.NoError(t, repo.Create(ctx, u))

	err := repo.Create(ctx, domain.NewUser("alice", "", "", "", "x", true))
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, u.DateJoined, got.DateJoined, time.Millisecond)

	// An update that changes nothing must still succeed.
	require.NoError(t, repo.Update(ctx, got))

	got.ID = u.ID + 1000
	assert.ErrorIs(t, repo.Update(ctx, got), domain.ErrUserNotFound)

	res, err := repo.List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.TotalCount)
}

func TestMySQL_UpdateKeepsExternallyOwnedFlags(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewUserRepository(db)

	stale := domain.NewUser("alice", "", "", "", "hash", true)
	require.NoError(t, repo.Create(ctx, stale))

	_, err := db.db.ExecContext(ctx, `UPDATE users SET is_active = 0 WHERE id = ?`, stale.ID)
	require.NoError(t, err)

	stale.FirstName = "Alice"
	require.NoError(t, repo.Update(ctx, stale))
	// same values again: zero changed rows must not read as a missing user
	require.NoError(t, repo.Update(ctx, stale))

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FirstName)
	assert.False(t, got.IsActive)
}

func TestMySQL_TokenGetOrCreate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	tokens := NewTokenRepository(db)

	alice := domain.NewUser("alice", "", "", "", "h", true)
	require.NoError(t, users.Create(ctx, alice))
	bob := domain.NewUser("bob", "", "", "", "h", true)
	require.NoError(t, users.Create(ctx, bob))

	const key = "abababababababababababababababababababab"
	first, created, err := tokens.GetOrCreate(ctx, alice.ID, key)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := tokens.GetOrCreate(ctx, alice.ID, "cdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcd")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Key, second.Key)

	_, _, err = tokens.GetOrCreate(ctx, bob.ID, key)
	assert.ErrorIs(t, err, domain.ErrTokenKeyConflict)

	require.NoError(t, users.Delete(ctx, alice.ID))
	_, err = tokens.GetByKey(ctx, key)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}
