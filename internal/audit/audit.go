// Package audit records security events produced by the token lifecycle.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
)

const archivePrefix = "security-events"

var (
	_ model.AuditSink = (*LogSink)(nil)
	_ model.AuditSink = (*ArchiveSink)(nil)
	_ model.AuditSink = Multi(nil)
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *logger.Logger
}

func NewLogSink(logger *logger.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, event model.SecurityEvent) error {
	s.logger.Warn("Audit: security event",
		"event_id", event.ID,
		"type", string(event.Type),
		"user_id", event.UserID,
		"token_hash_prefix", event.TokenHashPrefix,
		"revoked_count", event.RevokedCount,
		"occurred_at", event.OccurredAt)
	return nil
}

// ArchiveSink stores each event as a JSON object in object storage.
type ArchiveSink struct {
	storage model.ObjectStorage
}

func NewArchiveSink(storage model.ObjectStorage) *ArchiveSink {
	return &ArchiveSink{storage: storage}
}

func (s *ArchiveSink) Record(ctx context.Context, event model.SecurityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}

	key := ArchiveKey(event)
	if err := s.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive security event %s: %w", key, err)
	}

	return nil
}

// ArchiveKey returns security-events/YYYY/MM/DD/<id>.json for the event.
func ArchiveKey(event model.SecurityEvent) string {
	at := event.OccurredAt.UTC()
	return path.Join(archivePrefix, at.Format("2006/01/02"), event.ID.String()+".json")
}

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []model.AuditSink

func (m Multi) Record(ctx context.Context, event model.SecurityEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
