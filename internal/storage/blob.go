// Package storage defines the blob store contract used to persist export
// artifacts. Implementations cover the local filesystem, Google Cloud
// Storage, and an in-memory store for tests.
package storage

import (
	"context"
	"io"
)

// BlobStore writes a named artifact and returns its location URI
// (file://, gs://, memory://).
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
