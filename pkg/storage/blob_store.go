package storage

import (
	"context"
	"io"
)

// BlobStore provides access to binary media storage. Buckets are named
// per table category; object paths are "{entityId}/{filename}". Upload
// overwrites on conflict and returns a stable public URL.
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, bucket, path string) error
}
