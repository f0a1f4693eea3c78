package service

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

const (
	// MinSigningKeyLength is the minimum signing key size in bytes.
	MinSigningKeyLength = 32

	refreshTokenBytes = 64
	csrfTokenBytes    = 32
	hashPrefixLength  = 12
)

// EnsureSigningKeyStrength rejects blank keys and keys shorter than
// MinSigningKeyLength bytes.
func EnsureSigningKeyStrength(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: signing key is not set", model.ErrConfiguration)
	}
	if len(key) < MinSigningKeyLength {
		return fmt.Errorf("%w: signing key must be at least %d bytes, got %d",
			model.ErrConfiguration, MinSigningKeyLength, len(key))
	}
	return nil
}

// HashRefreshToken returns the hex encoded HMAC-SHA512 of the token keyed
// with the signing key.
func HashRefreshToken(key []byte, refreshToken string) string {
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(refreshToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashPrefix shortens a token hash for logs and audit events.
func HashPrefix(hash string) string {
	if len(hash) <= hashPrefixLength {
		return hash
	}
	return hash[:hashPrefixLength]
}

func (s *TokenService) hashRefreshToken(refreshToken string) string {
	return HashRefreshToken(s.pepper, refreshToken)
}

func (s *TokenService) randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
