package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestNewRepositories(t *testing.T) {
	db := &Connection{}

	users := NewUserRepository(db)
	assert.NotNil(t, users)
	assert.Equal(t, db, users.db)

	tokens := NewRefreshTokenRepository(db)
	assert.NotNil(t, tokens)
	assert.Equal(t, db, tokens.db)
	assert.Equal(t, time.UTC, tokens.now().Location())

	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Same(t, tokens, tokens.WithClock(func() time.Time { return fixed }))
	assert.Equal(t, fixed, tokens.now())

	roles := NewRoleRepository(db)
	assert.NotNil(t, roles)
	assert.Equal(t, db, roles.db)
}

func TestConnection_NilPool(t *testing.T) {
	conn := &Connection{}

	assert.NoError(t, conn.Close())
	assert.Error(t, conn.Ping(t.Context()))
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	other := &pgconn.PgError{Code: "23503"}

	assert.True(t, isUniqueViolation(unique))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", unique)))
	assert.False(t, isUniqueViolation(other))
	assert.False(t, isUniqueViolation(errors.New("plain")))
	assert.False(t, isUniqueViolation(nil))
}
