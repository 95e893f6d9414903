package dedup

import (
	"context"
	"sync"
)

// MemoryStore is an in-process visited-set for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	visited map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{visited: make(map[string]struct{})}
}

// Exists implements crawl.DedupStore.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visited[key]
	return ok, nil
}

// Mark implements crawl.DedupStore.
func (s *MemoryStore) Mark(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[key] = struct{}{}
	return nil
}

// Len reports how many keys were marked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}
