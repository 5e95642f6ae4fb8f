package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"
)

type OSSConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// objectPutter is the part of *oss.Bucket the store uses.
type objectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

type OSSStore struct {
	bucket objectPutter
	logger *zap.Logger
}

func NewOSSStore(cfg OSSConfig, logger ...*zap.Logger) (*OSSStore, error) {
	l := zap.L().Named("storage.oss")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("storage.oss")
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("missing oss endpoint/access key/secret key/bucket")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bkt, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	l.Info("oss evidence store ready", zap.String("bucket", cfg.Bucket))
	return &OSSStore{bucket: bkt, logger: l}, nil
}

// Upload stores data under key and returns key as the reference. Objects are
// private; readers resolve the key through a signed URL.
func (s *OSSStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", errors.New("empty key")
	}
	if len(data) == 0 {
		return "", errors.New("empty evidence")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	err := s.bucket.PutObject(key, bytes.NewReader(data),
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ObjectACL(oss.ACLPrivate),
	)
	if err != nil {
		s.logger.Warn("oss put object failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}
