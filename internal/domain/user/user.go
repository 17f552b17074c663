// Package user holds the locally synced view of identity-provider users.
// Credentials never reach this service.
package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MaxEmailLength    = 254
)

// User is unique by ID, Username and Email.
type User struct {
	ID        shared.UserID
	Username  string
	Email     string
	Roles     []shared.Role
	CreatedAt time.Time
}

// NewUserParams are the inputs for NewUser.
type NewUserParams struct {
	ID       string
	Username string
	Email    string
	Roles    []string
	Now      time.Time
}

// NewUser validates and builds a user. An empty role list means ROLE_USER.
func NewUser(p NewUserParams) (*User, error) {
	id, err := shared.NewUserID(p.ID)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(p.Username)
	if n := len([]rune(username)); n < MinUsernameLength || n > MaxUsernameLength {
		return nil, shared.NewValidationError("user", "New", "username", "username must be 3-50 characters")
	}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	if len(email) > MaxEmailLength {
		return nil, shared.NewValidationError("user", "New", "email", "email is too long")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, shared.NewValidationError("user", "New", "email", "email is not valid")
	}

	roles := make([]shared.Role, 0, len(p.Roles))
	seen := make(map[shared.Role]bool)
	for _, raw := range p.Roles {
		r, err := shared.ParseRole(raw)
		if err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		roles = []shared.Role{shared.RoleUser}
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &User{ID: id, Username: username, Email: email, Roles: roles, CreatedAt: now}, nil
}

// HasRole reports whether the user holds the role.
func (u *User) HasRole(r shared.Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Repository persists users. Create maps uniqueness violations to
// ErrUsernameTaken / ErrEmailTaken / ErrAlreadyExists.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id shared.UserID) (*User, error)
}
