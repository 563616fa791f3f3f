package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/forest-guardian/pdr-calculator/internal/properties"
)

// Store makes a local result file downloadable and returns its URL.
type Store interface {
	Publish(ctx context.Context, key, localPath, contentType string) (string, error)
}

var ErrInvalidKey = errors.New("invalid object key")

func cleanKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(key, "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// LocalStore leaves files under data/result and links to the HTTP server's
// /files route.
type LocalStore struct {
	BaseURL string
}

func (s LocalStore) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/files/" + cleaned, nil
}

// NewFromEnv picks the backend named by STORAGE_BACKEND.
func NewFromEnv(ctx context.Context) (Store, error) {
	switch backend := properties.StorageBackend(); backend {
	case "", "local":
		return LocalStore{BaseURL: properties.PublicBaseURL()}, nil
	case "gcs":
		return NewGCSStore(ctx, properties.GCSBucket(), properties.DownloadURLTTL())
	case "minio":
		return NewMinioStore(properties.Minio(), properties.DownloadURLTTL())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
