// Package objstore is the object store boundary used by the merge and clean
// stages. Store is implemented by MinIO for production and by Memory for
// tests and local runs.
package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and Stat when the key does not exist, and
// by List when the bucket does not exist.
var ErrNotFound = errors.New("objstore: not found")

// ObjectInfo is the metadata returned by Stat.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is the object store contract.
type Store interface {
	// List returns object keys under prefix in lexical order.
	List(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error)
	// Get returns the full object body.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// Stat returns object metadata or ErrNotFound.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// EnsureBucket creates bucket if it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error
}
