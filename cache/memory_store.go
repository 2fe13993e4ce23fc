package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process. It is used by tests and single-node development.
type MemoryStore struct {
	items *gocache.Cache
	// genMu serializes generation bumps with conditional writes.
	genMu sync.Mutex
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.items.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	deleted := 0
	for key := range s.items.Items() {
		if strings.HasPrefix(key, prefix) {
			s.items.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Generation(_ context.Context, namespace string) (int64, error) {
	return s.generation(namespace), nil
}

func (s *MemoryStore) generation(namespace string) int64 {
	if v, ok := s.items.Get(generationKey(namespace)); ok {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return 0
}

func (s *MemoryStore) BumpGeneration(_ context.Context, namespace string) (int64, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	next := s.generation(namespace) + 1
	s.items.Set(generationKey(namespace), next, gocache.NoExpiration)
	return next, nil
}

func (s *MemoryStore) SetIfGeneration(_ context.Context, namespace string, gen int64, key string, value []byte, ttl time.Duration) (bool, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	if s.generation(namespace) != gen {
		return false, nil
	}
	s.items.Set(key, value, ttl)
	return true, nil
}
