package rawstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// MinioStore keeps blobs in an S3-compatible bucket.
type MinioStore struct {
	client *miniogo.Client
	bucket string
	log    logger.Interface
}

// NewMinioStore connects to the object store. The bucket must already
// exist; Healthy reports when it does not.
func NewMinioStore(cfg *config.MinIOConfig, log logger.Interface) (*MinioStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("rawstore: create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.BucketName,
		log:    log,
	}, nil
}

// Put uploads the blob unless an object already exists under the key.
func (s *MinioStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, miniogo.StatObjectOptions{}); err == nil {
		return key, nil
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		miniogo.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("rawstore: upload %s: %w", key, err)
	}

	return key, nil
}

// DeleteBefore lists the bucket and removes every object whose date
// segment is older than cutoff.
func (s *MinioStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffDay := cutoff.UTC().Truncate(24 * time.Hour)
	removed := 0

	for object := range s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return removed, fmt.Errorf("rawstore: list objects: %w", object.Err)
		}

		day, ok := dateSegment(object.Key)
		if !ok || !day.Before(cutoffDay) {
			continue
		}

		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, miniogo.RemoveObjectOptions{}); err != nil {
			s.log.Warn("retention sweep failed for object",
				"key", object.Key,
				"error", err.Error(),
			)
			continue
		}
		removed++
	}

	return removed, nil
}

// Healthy verifies the bucket exists and is reachable.
func (s *MinioStore) Healthy(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("rawstore: bucket check: %w", err)
	}
	if !exists {
		return fmt.Errorf("rawstore: bucket %s does not exist", s.bucket)
	}
	return nil
}
