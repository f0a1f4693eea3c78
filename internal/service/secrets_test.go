package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

func TestEnsureSigningKeyStrength(t *testing.T) {
	assert.NoError(t, EnsureSigningKeyStrength(strings.Repeat("a", 32)))
	assert.NoError(t, EnsureSigningKeyStrength(strings.Repeat("a", 64)))
	// 11 two-byte runes are 22 bytes.
	assert.ErrorIs(t, EnsureSigningKeyStrength(strings.Repeat("é", 11)), model.ErrConfiguration)
	// 16 two-byte runes are 32 bytes.
	assert.NoError(t, EnsureSigningKeyStrength(strings.Repeat("é", 16)))
	assert.ErrorIs(t, EnsureSigningKeyStrength(""), model.ErrConfiguration)
}

func TestHashRefreshToken(t *testing.T) {
	key := []byte(testSigningKey)

	h1 := HashRefreshToken(key, "token")
	h2 := HashRefreshToken(key, "token")
	other := HashRefreshToken([]byte(strings.Repeat("z", 32)), "token")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, other)
	assert.NotEqual(t, h1, HashRefreshToken(key, "token2"))
	assert.Len(t, h1, 128)
	assert.Equal(t, strings.ToLower(h1), h1)
}

func TestHashPrefix(t *testing.T) {
	assert.Equal(t, "abcdef012345", HashPrefix("abcdef0123456789"))
	assert.Equal(t, "abc", HashPrefix("abc"))
}
