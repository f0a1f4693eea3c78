package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditSink records security-relevant events.
type AuditSink interface {
	Record(ctx context.Context, event SecurityEvent) error
}

// SecurityEventType enumerates audited events.
type SecurityEventType string

const (
	// EventReuseDetected is emitted when a revoked refresh token is presented again.
	EventReuseDetected SecurityEventType = "reuse_detected"
	// EventCapEnforced is emitted when login ages out excess refresh tokens.
	EventCapEnforced SecurityEventType = "cap_enforced"
	// EventRotationRace is emitted when a concurrent refresh already rotated the token.
	EventRotationRace SecurityEventType = "rotation_race"
)

// SecurityEvent describes one audited event. It never carries token
// plaintexts, only a short prefix of the token hash.
type SecurityEvent struct {
	ID              uuid.UUID         `json:"id"`
	Type            SecurityEventType `json:"type"`
	UserID          uuid.UUID         `json:"user_id"`
	TokenHashPrefix string            `json:"token_hash_prefix,omitempty"`
	RevokedCount    int64             `json:"revoked_count"`
	OccurredAt      time.Time         `json:"occurred_at"`
}
