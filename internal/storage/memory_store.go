package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in a map for tests and offline use.
// ResolveURL returns a synthetic URL so assembler output stays stable.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailKeys forces ReadBytes/ResolveURL errors for specific keys,
	// used to exercise per-item degradation.
	FailKeys map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		FailKeys: make(map[string]bool),
	}
}

func (s *MemoryStore) Put(key string, content []byte) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), content...)
}

func (s *MemoryStore) ResolveURL(_ context.Context, key string, _ time.Duration) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailKeys[key] {
		return "", ErrNotFound
	}
	if _, ok := s.data[key]; !ok {
		return "", ErrNotFound
	}
	return "memory://" + key, nil
}

func (s *MemoryStore) ReadBytes(_ context.Context, key string) ([]byte, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailKeys[key] {
		return nil, ErrNotFound
	}
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}
