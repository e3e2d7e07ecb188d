// Package storage provides the gateway to the remote object store.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the uniform interface to the blob backend. Implementations
// must be safe for concurrent use.
type ObjectStore interface {
	// Put uploads the content of r under key, overwriting any previous
	// object. Retries are safe: the same bytes land under the same key.
	Put(ctx context.Context, key string, r io.Reader) error

	// SignedURL produces a time-limited URL for direct client reads of key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
