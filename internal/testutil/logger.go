package testutil

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"github.com/dtroode/pizzeria-auth/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))}
}

// LogBuffer is a goroutine-safe log sink for assertions on log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// MakeBufferLogger returns a debug level logger writing into a LogBuffer.
func MakeBufferLogger() (*logger.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return logger.NewWithWriter(buf, int(slog.LevelDebug), "text"), buf
}
