package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/pizzeria-auth/internal/mocks"
	"github.com/dtroode/pizzeria-auth/internal/model"
	"github.com/dtroode/pizzeria-auth/internal/testutil"
)

func newTestDirectory(t *testing.T) (*Directory, *mocks.UserStore) {
	t.Helper()
	users := mocks.NewUserStore(t)
	dir, err := NewDirectory(users, bcrypt.MinCost, testutil.MakeNoopLogger())
	require.NoError(t, err)
	return dir, users
}

func storedUser(t *testing.T, password string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return model.User{ID: uuid.New(), Email: "a@x.com", PasswordHash: hash}
}

func TestDirectory_VerifyLogin(t *testing.T) {
	ctx := context.Background()
	user := storedUser(t, "correct")

	t.Run("valid credential", func(t *testing.T) {
		dir, users := newTestDirectory(t)
		users.On("GetByEmail", ctx, "a@x.com").Return(user, nil).Once()

		got, err := dir.VerifyLogin(ctx, model.Credential{Email: "  A@X.com ", Password: "correct"})
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		dir, users := newTestDirectory(t)
		users.On("GetByEmail", ctx, "a@x.com").Return(user, nil).Once()

		_, err := dir.VerifyLogin(ctx, model.Credential{Email: "a@x.com", Password: "wrong"})
		assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	})

	t.Run("unknown email", func(t *testing.T) {
		dir, users := newTestDirectory(t)
		users.On("GetByEmail", ctx, "nobody@x.com").Return(model.User{}, model.ErrNotFound).Once()

		_, err := dir.VerifyLogin(ctx, model.Credential{Email: "nobody@x.com", Password: "correct"})
		assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	})

	t.Run("deleted user", func(t *testing.T) {
		dir, users := newTestDirectory(t)
		deleted := user
		deletedAt := time.Now()
		deleted.DeletedAt = &deletedAt
		users.On("GetByEmail", ctx, "a@x.com").Return(deleted, nil).Once()

		_, err := dir.VerifyLogin(ctx, model.Credential{Email: "a@x.com", Password: "correct"})
		assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	})

	t.Run("empty fields skip lookup", func(t *testing.T) {
		dir, _ := newTestDirectory(t)

		_, err := dir.VerifyLogin(ctx, model.Credential{Email: "", Password: "correct"})
		assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
		_, err = dir.VerifyLogin(ctx, model.Credential{Email: "a@x.com", Password: ""})
		assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
	})

	t.Run("store failure is not an authentication failure", func(t *testing.T) {
		dir, users := newTestDirectory(t)
		users.On("GetByEmail", ctx, "a@x.com").Return(model.User{}, errors.New("pool closed")).Once()

		_, err := dir.VerifyLogin(ctx, model.Credential{Email: "a@x.com", Password: "correct"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrAuthenticationFailed)
	})
}

func TestDirectory_GetUserByID(t *testing.T) {
	ctx := context.Background()
	dir, users := newTestDirectory(t)

	active := storedUser(t, "pw")
	deleted := storedUser(t, "pw")
	deletedAt := time.Now()
	deleted.DeletedAt = &deletedAt

	users.On("GetByID", ctx, active.ID).Return(active, nil).Once()
	users.On("GetByID", ctx, deleted.ID).Return(deleted, nil).Once()

	got, err := dir.GetUserByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	_, err = dir.GetUserByID(ctx, deleted.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDirectory_Register(t *testing.T) {
	ctx := context.Background()
	dir, users := newTestDirectory(t)

	users.On("Create", ctx, mock.MatchedBy(func(u model.User) bool {
		return u.Email == "chef@x.com" &&
			u.ID != uuid.Nil &&
			bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("margherita")) == nil
	})).Return(func(_ context.Context, u model.User) (model.User, error) {
		return u, nil
	}).Once()

	user, err := dir.Register(ctx, model.Credential{Email: " Chef@x.com", Password: "margherita"})
	require.NoError(t, err)
	assert.Equal(t, "chef@x.com", user.Email)

	_, err = dir.Register(ctx, model.Credential{Email: "chef@x.com"})
	assert.Error(t, err)
}
