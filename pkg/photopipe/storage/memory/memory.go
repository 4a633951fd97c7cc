package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

// Store is an in-memory implementation of the photopipe.ObjectStore
// interface.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory object store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Upload stores content directly.
func (s *Store) Upload(ctx context.Context, bucket, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = data
	return nil
}

// Download returns content directly.
func (s *Store) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[objectID(bucket, key)]
	if !exists {
		return nil, photopipe.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
