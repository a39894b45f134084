package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements BlobStore for MinIO/S3 compatible storage.
// Buckets are created lazily with a public-read policy so uploads
// resolve to stable public URLs.
type MinioStore struct {
	client  *minio.Client
	baseURL string

	mu      sync.Mutex
	buckets map[string]bool
}

// NewMinioStore connects to MinIO. publicBaseURL is the externally
// reachable endpoint used to build object URLs; when empty, the
// connection endpoint is used.
func NewMinioStore(endpoint, accessKey, secretKey, publicBaseURL string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	baseURL := strings.TrimRight(publicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + endpoint
	}
	return &MinioStore{client: client, baseURL: baseURL, buckets: make(map[string]bool)}, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		policy := fmt.Sprintf(`{
			"Version": "2012-10-17",
			"Statement": [{
				"Effect": "Allow",
				"Principal": {"AWS": ["*"]},
				"Action": ["s3:GetObject"],
				"Resource": ["arn:aws:s3:::%s/*"]
			}]
		}`, bucket)
		if err := m.client.SetBucketPolicy(ctx, bucket, policy); err != nil {
			return fmt.Errorf("set bucket policy: %w", err)
		}
	}
	m.buckets[bucket] = true
	return nil
}

// Upload stores an object and returns its public URL.
func (m *MinioStore) Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) (string, error) {
	if err := m.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}
	_, err := m.client.PutObject(ctx, bucket, path, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", m.baseURL, bucket, path), nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, bucket, path string) error {
	if err := m.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
