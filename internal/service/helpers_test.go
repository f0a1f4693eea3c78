package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/mocks"
	"github.com/dtroode/pizzeria-auth/internal/model"
	"github.com/dtroode/pizzeria-auth/internal/repository/memory"
	"github.com/dtroode/pizzeria-auth/internal/testutil"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		SigningKey:             testSigningKey,
		Issuer:                 "pizzeria-auth",
		Audience:               "pizzeria",
		AccessTokenLifetime:    15 * time.Minute,
		RefreshTokenLifetime:   7 * 24 * time.Hour,
		MaxActiveRefreshTokens: 5,
	}
}

// fixture wires a TokenService to the in-memory store and permissive
// collaborator mocks for a single known user.
type fixture struct {
	svc      *TokenService
	store    *memory.RefreshTokenRepository
	clock    *fakeClock
	verifier *mocks.CredentialVerifier
	roles    *mocks.RoleResolver
	users    *mocks.UserLookup
	audit    *mocks.AuditSink
	user     model.User
}

func newFixture(t *testing.T, log *logger.Logger) *fixture {
	t.Helper()

	if log == nil {
		log = testutil.MakeNoopLogger()
	}

	f := &fixture{
		store:    memory.NewRefreshTokenRepository(),
		clock:    newFakeClock(),
		verifier: mocks.NewCredentialVerifier(t),
		roles:    mocks.NewRoleResolver(t),
		users:    mocks.NewUserLookup(t),
		audit:    mocks.NewAuditSink(t),
		user: model.User{
			ID:    uuid.New(),
			Email: "a@x.com",
		},
	}
	f.store.WithClock(f.clock.Now)

	f.verifier.On("VerifyLogin", mock.Anything, model.Credential{Email: "a@x.com", Password: "correct"}).
		Return(f.user, nil).Maybe()
	f.verifier.On("VerifyLogin", mock.Anything, mock.Anything).
		Return(model.User{}, model.ErrAuthenticationFailed).Maybe()
	f.roles.On("RolesForUser", mock.Anything, f.user.ID).Return([]string{"customer"}, nil).Maybe()
	f.users.On("GetUserByID", mock.Anything, f.user.ID).Return(f.user, nil).Maybe()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Maybe()

	svc, err := NewTokenService(testTokenConfig(), TokenDeps{
		Store:    f.store,
		Verifier: f.verifier,
		Roles:    f.roles,
		Users:    f.users,
		Audit:    f.audit,
	}, log, WithClock(f.clock.Now))
	require.NoError(t, err)
	f.svc = svc

	return f
}

func (f *fixture) credential() model.Credential {
	return model.Credential{Email: "a@x.com", Password: "correct"}
}

func (f *fixture) record(t *testing.T, plaintext string) model.RefreshToken {
	t.Helper()
	rec, err := f.store.GetByHash(t.Context(), HashRefreshToken([]byte(testSigningKey), plaintext))
	require.NoError(t, err)
	return rec
}

func (f *fixture) validCount(t *testing.T) int {
	t.Helper()
	valid, err := f.store.GetValidTokensForUser(t.Context(), f.user.ID, f.clock.Now())
	require.NoError(t, err)
	return len(valid)
}

func (f *fixture) auditEvents(eventType model.SecurityEventType) []model.SecurityEvent {
	var events []model.SecurityEvent
	for _, call := range f.audit.Calls {
		if call.Method != "Record" {
			continue
		}
		event := call.Arguments.Get(1).(model.SecurityEvent)
		if event.Type == eventType {
			events = append(events, event)
		}
	}
	return events
}
