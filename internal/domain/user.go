// Package domain contains the core business entities for Helpdesk.
// These are pure Go structs with no external dependencies, representing
// the accounts and credentials the identity core manages.
package domain

import (
	"time"
)

// User represents an account in the system.
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64

	// Username is the unique login name.
	// Constraints: 1-150 characters, letters, digits and @.+-_ only.
	Username string

	// Email is the optional contact address. It is not unique.
	Email string

	FirstName string
	LastName  string

	// PasswordHash is the encoded one-way hash of the user's password.
	// It is never exposed in any read projection.
	PasswordHash string

	// IsStaff indicates whether the user may access administrative tooling.
	// Owned by administrative processes; read-only through the API.
	IsStaff bool

	// IsActive indicates whether the user account is active.
	// Inactive users cannot obtain or use tokens.
	IsActive bool

	// IsSuperuser is surfaced only in the login response.
	IsSuperuser bool

	// DateJoined is the timestamp when the user was created.
	DateJoined time.Time

	// LastLogin is set by processes outside the identity core; nil if never set.
	LastLogin *time.Time
}

// NewUser creates a new User with default values.
func NewUser(username, email, firstName, lastName, passwordHash string, isActive bool) *User {
	return &User{
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
		IsStaff:      false,
		IsActive:     isActive,
		IsSuperuser:  false,
		DateJoined:   time.Now().UTC(),
	}
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// UserPatch holds the mutable profile fields of a partial update.
// A nil field is left untouched.
type UserPatch struct {
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
}

// Apply merges the non-nil fields of p into u and returns the names of the
// fields whose value actually changed.
func (u *User) Apply(p UserPatch) []string {
	var changed []string
	if p.Username != nil && *p.Username != u.Username {
		u.Username = *p.Username
		changed = append(changed, "username")
	}
	if p.Email != nil && *p.Email != u.Email {
		u.Email = *p.Email
		changed = append(changed, "email")
	}
	if p.FirstName != nil && *p.FirstName != u.FirstName {
		u.FirstName = *p.FirstName
		changed = append(changed, "first_name")
	}
	if p.LastName != nil && *p.LastName != u.LastName {
		u.LastName = *p.LastName
		changed = append(changed, "last_name")
	}
	return changed
}

// UserView is the read projection of a User. It has no credential field.
type UserView struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	IsStaff    bool       `json:"is_staff"`
	IsActive   bool       `json:"is_active"`
	DateJoined time.Time  `json:"date_joined"`
	LastLogin  *time.Time `json:"last_login"`
}

// View returns the read projection of the user.
func (u *User) View() UserView {
	return UserView{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsStaff:    u.IsStaff,
		IsActive:   u.IsActive,
		DateJoined: u.DateJoined,
		LastLogin:  u.LastLogin,
	}
}

// Views projects a slice of users.
func Views(users []*User) []UserView {
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, u.View())
	}
	return out
}
