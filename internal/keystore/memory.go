package keystore

import (
	"sync"

	"cipherchat/internal/domain"
)

// MemoryStore is an in-process SecureKeyStore for tests and environments
// without secure storage.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = value
	return nil
}

func (s *MemoryStore) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[name]
	return v, ok, nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	return nil
}

var _ domain.SecureKeyStore = (*MemoryStore)(nil)
