package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
)

// Directory verifies login credentials against bcrypt password hashes kept
// in a UserStore and resolves users by ID.
type Directory struct {
	users     model.UserStore
	dummyHash []byte
	cost      int
	logger    *logger.Logger
}

var (
	_ model.CredentialVerifier = (*Directory)(nil)
	_ model.UserLookup         = (*Directory)(nil)
)

// NewDirectory creates a Directory. cost is the bcrypt cost used for
// hashing new passwords and for the dummy hash compared on unknown emails.
func NewDirectory(users model.UserStore, cost int, logger *logger.Logger) (*Directory, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte("pizzeria-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy hash: %w", err)
	}

	return &Directory{
		users:     users,
		dummyHash: dummyHash,
		cost:      cost,
		logger:    logger,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyLogin checks the credential. Unknown emails, deleted users and
// wrong passwords all yield model.ErrAuthenticationFailed.
func (d *Directory) VerifyLogin(ctx context.Context, credential model.Credential) (model.User, error) {
	email := NormalizeEmail(credential.Email)
	if email == "" || credential.Password == "" {
		return model.User{}, model.ErrAuthenticationFailed
	}

	user, err := d.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		// Keep timing close to the known-email path.
		_ = bcrypt.CompareHashAndPassword(d.dummyHash, []byte(credential.Password))
		d.logger.Debug("Directory: unknown email on login")
		return model.User{}, model.ErrAuthenticationFailed
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(credential.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			d.logger.Warn("Directory: stored password hash is unusable",
				"user_id", user.ID,
				"error", err.Error())
		}
		return model.User{}, model.ErrAuthenticationFailed
	}

	if user.DeletedAt != nil {
		return model.User{}, model.ErrAuthenticationFailed
	}

	return user, nil
}

// GetUserByID returns the user or model.ErrNotFound. Deleted users are
// reported as not found.
func (d *Directory) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if user.DeletedAt != nil {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

// Register stores a new user with a bcrypt hash of the password.
func (d *Directory) Register(ctx context.Context, credential model.Credential) (model.User, error) {
	email := NormalizeEmail(credential.Email)
	if email == "" || credential.Password == "" {
		return model.User{}, fmt.Errorf("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credential.Password), d.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := d.users.Create(ctx, model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	d.logger.Info("Directory: user registered", "user_id", user.ID)

	return user, nil
}
