package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object's server-side metadata.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// EnsureBucket creates the configured bucket if it does not exist
	EnsureBucket(ctx context.Context) error

	// PresignPut returns a time-limited URL allowing a client to upload the
	// object directly, and the URL's expiry instant
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, time.Time, error)

	// PresignGet returns a time-limited URL for viewing an object
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Head returns size and content type of an object
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
