package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. All operations are serialized
// under a single exclusive lock (spec.md §5: "InMemoryStore
// serializes all operations under a single exclusive lock").
type MemoryStore struct {
	mu   sync.Mutex
	kv   map[string]map[string]string
	list map[string]map[string][]string
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:   make(map[string]map[string]string),
		list: make(map[string]map[string][]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, ns, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.kv[ns]
	if !ok {
		return "", false, nil
	}
	v, ok := bucket[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, ns, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.kv[ns]
	if !ok {
		bucket = make(map[string]string)
		s.kv[ns] = bucket
	}
	bucket[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.kv[ns]; ok {
		delete(bucket, key)
	}
	if bucket, ok := s.list[ns]; ok {
		delete(bucket, key)
	}
	return nil
}

func (s *MemoryStore) ListKeys(_ context.Context, ns string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var keys []string
	if bucket, ok := s.kv[ns]; ok {
		for k := range bucket {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	if bucket, ok := s.list[ns]; ok {
		for k := range bucket {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (s *MemoryStore) Append(_ context.Context, ns, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.list[ns]
	if !ok {
		bucket = make(map[string][]string)
		s.list[ns] = bucket
	}
	bucket[key] = append(bucket[key], value)
	return nil
}

func (s *MemoryStore) GetList(_ context.Context, ns, key string, limit, offset int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.list[ns]
	if !ok {
		return nil, nil
	}
	items := bucket[key]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]string, len(items))
	copy(out, items)
	return out, nil
}

func (s *MemoryStore) TrimList(_ context.Context, ns, key string, maxSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.list[ns]
	if !ok {
		return nil
	}
	items := bucket[key]
	if maxSize < 0 {
		maxSize = 0
	}
	if len(items) > maxSize {
		bucket[key] = append([]string(nil), items[len(items)-maxSize:]...)
	}
	return nil
}

func (s *MemoryStore) ClearList(_ context.Context, ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.list[ns]; ok {
		delete(bucket, key)
	}
	return nil
}

func (s *MemoryStore) ListLength(_ context.Context, ns, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.list[ns]
	if !ok {
		return 0, nil
	}
	return len(bucket[key]), nil
}
