// Package session persists the logged-in identity between runs.
package session

import (
	"context"
	"sync"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

// Store keeps at most one identity.
type Store interface {
	Load(ctx context.Context) (models.User, bool, error)
	Save(ctx context.Context, user models.User) error
	Clear(ctx context.Context) error
}

// MemoryStore lives as long as the process. Used by the web variant.
type MemoryStore struct {
	mu   sync.Mutex
	user *models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false, nil
	}
	return *s.user, true, nil
}

func (s *MemoryStore) Save(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return nil
}
