// Package blobstore abstracts where snapshot blobs live: an in-memory
// map, a local directory, or S3-compatible object storage. The database
// uses it to ship and restore whole snapshots by name.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a named blob does not exist.
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blobstore: blob not found")

// BlobStore stores immutable blobs by name.
type BlobStore interface {
	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create opens a blob for streaming writes. The blob becomes
	// visible when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a complete blob in one call.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read handle.
type Blob interface {
	io.ReadCloser

	// Size returns the blob size in bytes, or -1 when unknown.
	Size() int64
}

// WritableBlob is a write handle. Writes are not visible until Close
// succeeds.
type WritableBlob interface {
	io.WriteCloser
}

// ReadAll reads a whole named blob.
func ReadAll(ctx context.Context, s BlobStore, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return io.ReadAll(b)
}
