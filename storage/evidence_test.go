package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBucket struct {
	key  string
	body []byte
	opts int
	err  error
}

func (f *fakeBucket) PutObject(key string, r io.Reader, options ...oss.Option) error {
	if f.err != nil {
		return f.err
	}
	f.key = key
	f.body, _ = io.ReadAll(r)
	f.opts = len(options)
	return nil
}

func TestEvidenceKey(t *testing.T) {
	org, user := uuid.New(), uuid.New()
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	key := EvidenceKey("/attendance/", org, user, date, "in", "image/jpeg")

	prefix := "attendance/" + org.String() + "/" + user.String() + "/2024-05-01/in-"
	assert.True(t, strings.HasPrefix(key, prefix), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)
	assert.NotEqual(t, key, EvidenceKey("attendance", org, user, date, "in", "image/jpeg"))
}

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "image/png", DetectContentType(png))
	assert.Equal(t, "application/octet-stream", DetectContentType(nil))
}

func TestOSSStore_Upload(t *testing.T) {
	bucket := &fakeBucket{}
	store := &OSSStore{bucket: bucket, logger: zap.NewNop()}

	ref, err := store.Upload(context.Background(), "/a/b.jpg", []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "a/b.jpg", ref)
	assert.Equal(t, "a/b.jpg", bucket.key)
	assert.Equal(t, []byte("img"), bucket.body)
	assert.Equal(t, 3, bucket.opts)
}

func TestOSSStore_UploadErrors(t *testing.T) {
	store := &OSSStore{bucket: &fakeBucket{err: errors.New("403")}, logger: zap.NewNop()}

	_, err := store.Upload(context.Background(), "k", []byte("x"), "")
	assert.ErrorContains(t, err, "403")

	_, err = store.Upload(context.Background(), "", []byte("x"), "")
	assert.Error(t, err)

	_, err = store.Upload(context.Background(), "k", nil, "")
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	_, err := NewUnavailable().Upload(context.Background(), "k", []byte("x"), "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewOSSStore_RequiresConfig(t *testing.T) {
	_, err := NewOSSStore(OSSConfig{Endpoint: "e"})
	assert.Error(t, err)
}
