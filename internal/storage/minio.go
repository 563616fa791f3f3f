package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/properties"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore publishes to any S3 compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewMinioStore(config properties.MinioConfig, ttl time.Duration) (*MinioStore, error) {
	if config.Endpoint == "" || config.Bucket == "" {
		return nil, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio storage backend")
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: config.Bucket, ttl: ttl}, nil
}

func (s *MinioStore) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if _, err := s.client.FPutObject(ctx, s.bucket, cleaned, localPath, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("fail to upload %s: %w", cleaned, err)
	}
	return s.url(ctx, cleaned)
}

func (s *MinioStore) url(ctx context.Context, key string) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("fail to presign %s: %w", key, err)
	}
	return presigned.String(), nil
}
