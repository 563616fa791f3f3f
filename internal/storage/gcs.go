package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
)

type GCSStore struct {
	client *gcs.Client
	bucket string
	ttl    time.Duration
}

func NewGCSStore(ctx context.Context, bucket string, ttl time.Duration) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required for the gcs storage backend")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, ttl: ttl}, nil
}

func (s *GCSStore) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := s.client.Bucket(s.bucket).Object(cleaned).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", fmt.Errorf("fail to upload %s: %w", cleaned, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("fail to finalize upload of %s: %w", cleaned, err)
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(cleaned, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("fail to sign URL for %s: %w", cleaned, err)
	}
	return url, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
