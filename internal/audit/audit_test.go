package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/pizzeria-auth/internal/mocks"
	"github.com/dtroode/pizzeria-auth/internal/model"
	"github.com/dtroode/pizzeria-auth/internal/testutil"
)

func testEvent() model.SecurityEvent {
	return model.SecurityEvent{
		ID:              uuid.MustParse("6f1c2f8e-2a7b-4d0e-9a57-3b2f1e0c9d11"),
		Type:            model.EventReuseDetected,
		UserID:          uuid.MustParse("0b7a4e2c-5d1f-4a8b-b3c9-7e6d5f4a3b21"),
		TokenHashPrefix: "abcdef012345",
		RevokedCount:    3,
		OccurredAt:      time.Date(2026, 2, 7, 23, 59, 0, 0, time.UTC),
	}
}

func TestArchiveKey(t *testing.T) {
	event := testEvent()
	assert.Equal(t, "security-events/2026/02/07/6f1c2f8e-2a7b-4d0e-9a57-3b2f1e0c9d11.json", ArchiveKey(event))

	event.OccurredAt = time.Date(2026, 2, 8, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, "security-events/2026/02/07/6f1c2f8e-2a7b-4d0e-9a57-3b2f1e0c9d11.json", ArchiveKey(event))
}

func TestArchiveSink_Record(t *testing.T) {
	ctx := context.Background()
	event := testEvent()

	t.Run("uploads json", func(t *testing.T) {
		storage := mocks.NewObjectStorage(t)
		var body []byte
		storage.On("Upload", ctx, ArchiveKey(event), mock.Anything, mock.AnythingOfType("int64"), "application/json").
			Run(func(args mock.Arguments) {
				body, _ = io.ReadAll(args.Get(2).(io.Reader))
				assert.Equal(t, int64(len(body)), args.Get(3).(int64))
			}).
			Return(nil).Once()

		require.NoError(t, NewArchiveSink(storage).Record(ctx, event))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, "reuse_detected", decoded["type"])
		assert.Equal(t, "abcdef012345", decoded["token_hash_prefix"])
		assert.Equal(t, float64(3), decoded["revoked_count"])
	})

	t.Run("storage error", func(t *testing.T) {
		storage := mocks.NewObjectStorage(t)
		storage.On("Upload", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("bucket gone")).Once()

		err := NewArchiveSink(storage).Record(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to archive security event")
	})
}

func TestLogSink_Record(t *testing.T) {
	log, buf := testutil.MakeBufferLogger()

	require.NoError(t, NewLogSink(log).Record(context.Background(), testEvent()))

	out := buf.String()
	assert.Contains(t, out, "Audit: security event")
	assert.Contains(t, out, "type=reuse_detected")
	assert.Contains(t, out, "token_hash_prefix=abcdef012345")
	assert.Contains(t, out, "revoked_count=3")
}

func TestMulti_Record(t *testing.T) {
	ctx := context.Background()
	event := testEvent()

	failing := mocks.NewAuditSink(t)
	failing.On("Record", ctx, event).Return(errors.New("first failed")).Once()
	healthy := mocks.NewAuditSink(t)
	healthy.On("Record", ctx, event).Return(nil).Once()

	err := Multi{failing, healthy}.Record(ctx, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")

	assert.NoError(t, Multi{}.Record(ctx, event))
}
