// Package objstore stores photo blobs. Post records in the key-value
// store carry object keys, never the bytes themselves.
package objstore

import (
	"context"
	"io"
	"time"
)

// Store provides access to blob storage for captured photos.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
