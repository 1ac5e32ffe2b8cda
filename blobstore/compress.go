package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec a CompressedStore applies.
type Compression int

const (
	// CompressionZstd compresses blobs with zstandard.
	CompressionZstd Compression = iota

	// CompressionLZ4 compresses blobs with the LZ4 frame format.
	CompressionLZ4
)

// String returns the codec name.
func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// CompressedStore wraps a BlobStore, compressing blobs on the way in
// and decompressing on the way out. Snapshot containers compress well:
// vectors dominate, and the metadata sections are highly repetitive.
type CompressedStore struct {
	inner BlobStore
	codec Compression
}

// NewCompressedStore creates a CompressedStore using the given codec.
func NewCompressedStore(inner BlobStore, codec Compression) *CompressedStore {
	return &CompressedStore{inner: inner, codec: codec}
}

// Open opens a blob and decompresses it.
func (s *CompressedStore) Open(ctx context.Context, name string) (Blob, error) {
	raw, err := ReadAll(ctx, s.inner, name)
	if err != nil {
		return nil, err
	}
	data, err := s.decompress(raw)
	if err != nil {
		return nil, err
	}
	return &memoryBlob{Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

// Create buffers writes and stores the compressed blob on Close.
func (s *CompressedStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	return &compressedWritableBlob{ctx: ctx, store: s, name: name}, nil
}

// Put compresses data and writes it to the inner store.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	compressed, err := s.compress(data)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, name, compressed)
}

// Delete removes a blob.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List passes through to the inner store.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CompressedStore) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch s.codec {
	case CompressionZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := enc.Write(data); err != nil {
			_ = enc.Close()
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	case CompressionLZ4:
		enc := lz4.NewWriter(&buf)
		if _, err := enc.Write(data); err != nil {
			_ = enc.Close()
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("blobstore: unknown compression codec %d", s.codec)
	}
	return buf.Bytes(), nil
}

func (s *CompressedStore) decompress(data []byte) ([]byte, error) {
	switch s.codec {
	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("blobstore: unknown compression codec %d", s.codec)
	}
}

type compressedWritableBlob struct {
	ctx   context.Context
	store *CompressedStore
	name  string
	buf   bytes.Buffer
}

func (w *compressedWritableBlob) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *compressedWritableBlob) Close() error {
	return w.store.Put(w.ctx, w.name, w.buf.Bytes())
}
