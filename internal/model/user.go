package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, user User) (User, error)
}

// CredentialVerifier validates a login credential pair. It returns
// ErrAuthenticationFailed for any bad credential without telling an unknown
// email apart from a wrong password.
type CredentialVerifier interface {
	VerifyLogin(ctx context.Context, credential Credential) (User, error)
}

// RoleResolver returns the role names attached to a user. An empty result
// is valid.
type RoleResolver interface {
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// UserLookup resolves a user by ID, returning ErrNotFound when absent.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
}

// User represents a stored user.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Credential is a login credential pair.
type Credential struct {
	Email    string
	Password string
}
