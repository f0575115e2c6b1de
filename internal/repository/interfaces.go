// Package repository defines data access interfaces for Helpdesk.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, MySQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"

	"github.com/prn-tf/helpdesk/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user and assigns its ID.
	// Returns domain.ErrUserAlreadyExists if the username is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by exact username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// Update persists username, email, first_name, last_name and password_hash.
	// Staff, active, superuser and last-login columns are left as stored.
	// Returns domain.ErrUserAlreadyExists if the new username is taken.
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user by ID. The user's token is removed with it.
	Delete(ctx context.Context, id int64) error

	// List returns users ordered by date joined, newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// =============================================================================
// Token Repository
// =============================================================================

// TokenRepository defines the interface for token data access.
type TokenRepository interface {
	// GetOrCreate returns the user's existing token, or stores a new one with
	// the given key. created reports whether the key was stored.
	// Concurrent callers for the same user all observe the same token.
	// Returns domain.ErrTokenKeyConflict if key belongs to another user.
	GetOrCreate(ctx context.Context, userID int64, key string) (token *domain.Token, created bool, err error)

	// GetByKey retrieves a token by its key.
	// Returns domain.ErrTokenNotFound if no token matches.
	GetByKey(ctx context.Context, key string) (*domain.Token, error)
}

// =============================================================================
// Common Types
// =============================================================================

// MaxListLimit caps the number of rows a single List call returns.
const MaxListLimit = 1000

// ListOptions contains common pagination options.
type ListOptions struct {
	// Limit is the maximum number of results. 0 or less means MaxListLimit.
	Limit int

	// Offset is the number of results to skip.
	Offset int
}

// Normalize clamps the options to valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// TotalCount is the total number of items (ignoring pagination).
	TotalCount int64

	// HasMore indicates if there are more items beyond this page.
	HasMore bool
}

// =============================================================================
// Backend
// =============================================================================

// Repositories holds all repository instances of one backend.
type Repositories struct {
	User  UserRepository
	Token TokenRepository
}
