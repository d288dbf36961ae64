package archive

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrObjectNotFound is returned by ObjectStore.GetObject for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the destination of archived revisions.
type ObjectStore interface {
	// PutObject stores data under key, replacing any previous object.
	PutObject(ctx context.Context, key string, data []byte) error

	// GetObject returns the object stored under key.
	//
	// Returns:
	//   - error: ErrObjectNotFound if the key does not exist
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// MemoryObjectStore keeps objects in memory.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStore creates an empty store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func (s *MemoryObjectStore) PutObject(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf
	return nil
}

func (s *MemoryObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (s *MemoryObjectStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
