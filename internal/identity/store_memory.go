package identity

import (
	"context"
	"strings"
	"sync"

	"passgate/pkg/platform/sentinel"
)

// MemoryStore keeps staff accounts in memory for unit tests.
type MemoryStore struct {
	mu     sync.RWMutex
	admins map[string]Admin
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{admins: make(map[string]Admin)}
}

func (s *MemoryStore) Save(_ context.Context, admin Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[strings.ToLower(admin.Email)] = admin
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if admin, ok := s.admins[strings.ToLower(email)]; ok {
		return &admin, nil
	}
	return nil, sentinel.ErrNotFound
}
