// Package memory keeps local state in process memory. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"ledgerlite/internal/storage"
)

type Store struct {
	mu    sync.Mutex
	items map[string][]byte
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Write(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
