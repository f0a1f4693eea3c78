//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dtroode/pizzeria-auth/internal/model"
	repo "github.com/dtroode/pizzeria-auth/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "pizzeria_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/pizzeria_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func connect(t *testing.T) *repo.Connection {
	t.Helper()
	conn, err := repo.NewConnection(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func createUser(t *testing.T, conn *repo.Connection, email string) model.User {
	t.Helper()
	u, err := repo.NewUserRepository(conn).Create(context.Background(), model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: []byte("$2a$04$hash"),
	})
	require.NoError(t, err)
	return u
}

func TestUserAndRoleRepositories(t *testing.T) {
	ctx := context.Background()
	conn := connect(t)
	ur := repo.NewUserRepository(conn)
	rr := repo.NewRoleRepository(conn)

	u := createUser(t, conn, "user@example.com")

	_, err := ur.Create(ctx, model.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: []byte("x")})
	require.ErrorIs(t, err, model.ErrAlreadyExists)

	byEmail, err := ur.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.Equal(t, u.PasswordHash, byEmail.PasswordHash)

	byID, err := ur.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, byID.Email)

	_, err = ur.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, model.ErrNotFound)

	roles, err := rr.RolesForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, roles)

	require.NoError(t, rr.Assign(ctx, u.ID, "kitchen"))
	require.NoError(t, rr.Assign(ctx, u.ID, "admin"))
	require.NoError(t, rr.Assign(ctx, u.ID, "admin"))

	roles, err = rr.RolesForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "kitchen"}, roles)
}

func TestRefreshTokenRepository(t *testing.T) {
	ctx := context.Background()
	conn := connect(t)
	u := createUser(t, conn, "tokens@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)
	revokedAt := now.Add(42 * time.Second)
	tr := repo.NewRefreshTokenRepository(conn).WithClock(func() time.Time { return revokedAt })

	hash := func(c byte) string {
		b := make([]byte, 128)
		for i := range b {
			b[i] = c
		}
		return string(b)
	}

	add := func(h string, expiresAt time.Time) {
		require.NoError(t, tr.Add(ctx, model.RefreshToken{
			ID:        uuid.New(),
			UserID:    u.ID,
			TokenHash: h,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}))
	}

	add(hash('a'), now.Add(time.Hour))
	add(hash('b'), now.Add(time.Hour))
	add(hash('c'), now.Add(time.Hour))
	add(hash('d'), now.Add(-time.Minute))

	require.ErrorIs(t, tr.Add(ctx, model.RefreshToken{ID: uuid.New(), UserID: u.ID, TokenHash: hash('a'), CreatedAt: now, ExpiresAt: now}), model.ErrAlreadyExists)

	got, err := tr.GetByHash(ctx, hash('a'))
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.False(t, got.IsRevoked)

	_, err = tr.GetByHash(ctx, hash('z'))
	require.ErrorIs(t, err, model.ErrNotFound)

	valid, err := tr.GetValidTokensForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.Len(t, valid, 3)

	replacement := hash('b')
	ok, err := tr.Revoke(ctx, hash('a'), &replacement)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.Revoke(ctx, hash('a'), nil)
	require.NoError(t, err)
	require.False(t, ok)

	got, err = tr.GetByHash(ctx, hash('a'))
	require.NoError(t, err)
	require.True(t, got.IsRevoked)
	require.NotNil(t, got.ReplacedByTokenHash)
	require.Equal(t, replacement, *got.ReplacedByTokenHash)
	require.NotNil(t, got.RevokedAt)
	require.True(t, revokedAt.Equal(*got.RevokedAt))

	n, err := tr.RevokeMany(ctx, u.ID, []string{hash('b'), hash('a')})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = tr.RevokeAllForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	valid, err = tr.GetValidTokensForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.Empty(t, valid)

	for _, c := range []byte{'b', 'c'} {
		got, err = tr.GetByHash(ctx, hash(c))
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		require.True(t, revokedAt.Equal(*got.RevokedAt))
	}

	expired, err := tr.GetByHash(ctx, hash('d'))
	require.NoError(t, err)
	require.False(t, expired.IsRevoked)
}

func TestRefreshTokenRepository_ConcurrentRevoke(t *testing.T) {
	ctx := context.Background()
	conn := connect(t)
	tr := repo.NewRefreshTokenRepository(conn)
	u := createUser(t, conn, "race@example.com")

	h := uuid.NewString() + uuid.NewString() + uuid.NewString() + uuid.NewString()
	h = h[:128]
	require.NoError(t, tr.Add(ctx, model.RefreshToken{
		ID:        uuid.New(),
		UserID:    u.ID,
		TokenHash: h,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tr.Revoke(ctx, h, nil)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}
