package blobstore

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CachingStore wraps a BlobStore and caches whole blobs in memory.
// Concurrent opens of the same cold blob are deduplicated into a single
// fetch from the inner store. Writes and deletes invalidate the cache.
type CachingStore struct {
	inner BlobStore
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewCachingStore creates a CachingStore around inner.
func NewCachingStore(inner BlobStore) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: make(map[string][]byte),
	}
}

// Open returns a reader over the cached blob, fetching it from the
// inner store on a miss.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	s.mu.RLock()
	data, ok := s.cache[name]
	s.mu.RUnlock()

	if !ok {
		v, err, _ := s.group.Do(name, func() (any, error) {
			fetched, err := ReadAll(ctx, s.inner, name)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.cache[name] = fetched
			s.mu.Unlock()
			return fetched, nil
		})
		if err != nil {
			return nil, err
		}
		data = v.([]byte)
	}

	return &memoryBlob{Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

// Prefetch warms the cache for the given names concurrently.
func (s *CachingStore) Prefetch(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			b, err := s.Open(ctx, name)
			if err != nil {
				return err
			}
			return b.Close()
		})
	}
	return g.Wait()
}

// Create passes through to the inner store; the cache entry is
// invalidated when the write completes.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &invalidatingBlob{WritableBlob: w, store: s, name: name}, nil
}

// Put writes through and caches the new content.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	if err := s.inner.Put(ctx, name, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[name] = slices.Clone(data)
	s.mu.Unlock()
	return nil
}

// Delete removes the blob and its cache entry.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List passes through to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

type invalidatingBlob struct {
	WritableBlob
	store *CachingStore
	name  string
}

func (b *invalidatingBlob) Close() error {
	b.store.invalidate(b.name)
	return b.WritableBlob.Close()
}
