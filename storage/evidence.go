// Package storage uploads capture evidence and hands back an opaque
// reference the session row can store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrUnavailable = errors.New("evidence store is not configured")

//go:generate mockgen -source=evidence.go -destination=mock/evidence_mock.go -package=mock
type EvidenceStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// EvidenceKey builds attendance/<org>/<user>/<yyyy-mm-dd>/<leg>-<uuid><ext>.
func EvidenceKey(prefix string, orgID, userID uuid.UUID, date time.Time, leg, contentType string) string {
	name := fmt.Sprintf("%s-%s%s", leg, uuid.NewString(), extensionFor(contentType))
	return path.Join(strings.Trim(prefix, "/"), orgID.String(), userID.String(), date.Format("2006-01-02"), name)
}

// DetectContentType sniffs the payload's magic bytes; clients are not
// trusted to label their uploads.
func DetectContentType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return mimetype.Detect(data).String()
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".bin"
	}
}

type unavailable struct{}

// NewUnavailable is used when no bucket is configured; every upload fails
// and the session keeps EvidenceFailed.
func NewUnavailable() EvidenceStore {
	return unavailable{}
}

func (unavailable) Upload(context.Context, string, []byte, string) (string, error) {
	return "", ErrUnavailable
}
