package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio implements minioAPI for testing without network.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      string

	putErr         error
	putKey         string
	putSize        int64
	putContentType string
	putBody        []byte
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}
func (f *fakeMinio) MakeBucket(_ context.Context, bucket string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = bucket
	return f.makeBucketErr
}
func (f *fakeMinio) PutObject(_ context.Context, _ string, key string, reader io.Reader, size int64, opts minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	f.putKey = key
	f.putSize = size
	f.putContentType = opts.ContentType
	f.putBody, _ = io.ReadAll(reader)
	return minioLib.UploadInfo{Key: key, Size: size}, f.putErr
}
func TestNewClientWithAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket exists", func(t *testing.T) {
		api := &fakeMinio{bucketExists: true}
		c, err := NewClientWithAPI(ctx, api, "audit")
		require.NoError(t, err)
		assert.Equal(t, "audit", c.bucket)
		assert.Empty(t, api.madeBucket)
	})

	t.Run("creates missing bucket", func(t *testing.T) {
		api := &fakeMinio{bucketExists: false}
		c, err := NewClientWithAPI(ctx, api, "audit")
		require.NoError(t, err)
		assert.NotNil(t, c)
		assert.Equal(t, "audit", api.madeBucket)
	})

	t.Run("bucket check error", func(t *testing.T) {
		api := &fakeMinio{bucketExistsErr: errors.New("boom")}
		c, err := NewClientWithAPI(ctx, api, "audit")
		assert.Nil(t, c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure bucket exists")
	})

	t.Run("make bucket error", func(t *testing.T) {
		api := &fakeMinio{makeBucketErr: errors.New("fail")}
		c, err := NewClientWithAPI(ctx, api, "audit")
		assert.Nil(t, c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create bucket")
	})
}

func TestClient_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		api := &fakeMinio{}
		c := &Client{api: api, bucket: "b"}
		err := c.Upload(ctx, "security-events/k.json", bytes.NewReader([]byte("{}")), 2, "application/json")
		require.NoError(t, err)
		assert.Equal(t, "security-events/k.json", api.putKey)
		assert.Equal(t, int64(2), api.putSize)
		assert.Equal(t, "application/json", api.putContentType)
		assert.Equal(t, []byte("{}"), api.putBody)
	})

	t.Run("error", func(t *testing.T) {
		api := &fakeMinio{putErr: errors.New("put-fail")}
		c := &Client{api: api, bucket: "b"}
		err := c.Upload(ctx, "k", bytes.NewReader([]byte("data")), -1, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})
}

func TestConnect_InvalidEndpoint(t *testing.T) {
	_, err := Connect(context.Background(), Config{Endpoint: "http://bad endpoint", Bucket: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create minio client")
}
