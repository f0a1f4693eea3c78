package model

import (
	"context"
	"io"
)

// ObjectStorage is a write-only blob store used for audit archives.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}
